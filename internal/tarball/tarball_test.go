package tarball

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteDirRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "bin", "app"), []byte("binary"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := WriteDir(tw, src, "payload"); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := Extract(&buf, dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "payload", "bin", "app"))
	if err != nil {
		t.Fatalf("extracted file: %v", err)
	}
	if string(data) != "binary" {
		t.Fatalf("content = %q", data)
	}

	info, err := os.Stat(filepath.Join(dest, "payload", "bin", "app"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Fatal("executable bit lost")
	}
}

func TestWriteFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "app")
	if err := os.WriteFile(src, []byte("binary"), 0755); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := WriteFile(tw, src, "usr/bin/app"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := Extract(&buf, dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "usr", "bin", "app")); err != nil {
		t.Fatalf("extracted file: %v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: "../escape",
		Mode: 0644,
		Size: 0,
	}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := Extract(&buf, t.TempDir()); err == nil {
		t.Fatal("traversal entry extracted without error")
	}
}

func TestExtractSkipsSpecialEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "dev/null",
		Typeflag: tar.TypeChar,
		Mode:     0666,
	}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := Extract(&buf, dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "dev", "null")); !os.IsNotExist(err) {
		t.Fatal("special entry was materialized")
	}
}
