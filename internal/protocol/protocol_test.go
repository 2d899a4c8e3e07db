package protocol

import "testing"

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(CmdBuild, &BuildRequest{
		Root:   "/src/embernode",
		Output: "/src/embernode/dist",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Command != CmdBuild {
		t.Fatalf("command = %q", env.Command)
	}

	req, err := DecodePayload[BuildRequest](payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if req.Root != "/src/embernode" || req.Output != "/src/embernode/dist" {
		t.Fatalf("request = %+v", req)
	}
	if req.Manifest != "" {
		t.Fatalf("manifest = %q, want empty", req.Manifest)
	}
}

func TestEncodeNilPayload(t *testing.T) {
	data, err := Encode(CmdStatus, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Command != CmdStatus {
		t.Fatalf("command = %q", env.Command)
	}
	if len(payload) != 0 {
		t.Fatalf("payload = %q, want empty", payload)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("garbage decoded without error")
	}
}
