package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStoreUploadAndDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	stored, err := s.Upload(context.Background(), []byte("frame bytes"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(stored.URL, "http://localhost:8080/static/tmp/") {
		t.Fatalf("URL = %q, want static tmp prefix", stored.URL)
	}
	if !strings.HasSuffix(stored.Ref, ".png") {
		t.Fatalf("Ref = %q, want .png suffix", stored.Ref)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(stored.Ref)))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(data) != "frame bytes" {
		t.Fatalf("stored bytes mismatch: %q", data)
	}

	if err := s.Delete(context.Background(), stored.Ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(stored.Ref))); !os.IsNotExist(err) {
		t.Fatalf("file still present after delete")
	}
	// Deleting twice is fine.
	if err := s.Delete(context.Background(), stored.Ref); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFileStoreDeleteRejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Delete(context.Background(), "../outside"); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "plain", key: "tmp/a.png", want: "tmp/a.png"},
		{name: "leading slash", key: "/tmp/a.png", want: "tmp/a.png"},
		{name: "dot prefix", key: "./tmp/a.png", want: "tmp/a.png"},
		{name: "backslashes", key: "tmp\\a.png", want: "tmp/a.png"},
		{name: "traversal", key: "../secrets", wantErr: true},
		{name: "empty", key: "  ", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sanitizeKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) expected error", tc.key)
				}
				return
			}
			if err != nil {
				t.Fatalf("sanitizeKey(%q): %v", tc.key, err)
			}
			if got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}
