package runtime

import (
	"io"
	"slices"
	"strings"
	"testing"
)

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root", "LANG=C"}
	overrides := []string{"PATH=/kiln/bin", "KILN_NAME=demo"}

	merged := mergeEnv(base, overrides)

	for _, want := range []string{"PATH=/kiln/bin", "HOME=/root", "LANG=C", "KILN_NAME=demo"} {
		if !slices.Contains(merged, want) {
			t.Fatalf("merged env %v missing %q", merged, want)
		}
	}
	if slices.Contains(merged, "PATH=/usr/bin") {
		t.Fatal("override did not replace base entry")
	}
	if len(merged) != 4 {
		t.Fatalf("len(merged) = %d, want 4", len(merged))
	}
}

func TestNextExecID(t *testing.T) {
	a := nextExecID()
	b := nextExecID()
	if a == b {
		t.Fatalf("exec IDs not unique: %q", a)
	}
	if !strings.HasPrefix(a, "exec-") {
		t.Fatalf("exec ID = %q, want exec- prefix", a)
	}
}

func TestDoneReader(t *testing.T) {
	dr := newDoneReader(strings.NewReader("hi"))

	select {
	case <-dr.done:
		t.Fatal("done closed before EOF")
	default:
	}

	data, err := io.ReadAll(dr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("data = %q", data)
	}

	select {
	case <-dr.done:
	default:
		t.Fatal("done not closed after EOF")
	}

	// Reading past EOF must not panic on the closed channel.
	if _, err := dr.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("post-EOF read err = %v", err)
	}
}
