package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestWithin(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "samples", "0"), 0700); err != nil {
		t.Fatalf("failed to create sample dir: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		wantErr     bool
		errContains string
	}{
		{
			name: "existing directory",
			path: filepath.Join(root, "samples", "0"),
		},
		{
			name: "file not yet written",
			path: filepath.Join(root, "samples", "0", "models", "1", "model.json"),
		},
		{
			name: "root itself",
			path: root,
		},
		{
			name:        "dot-dot escape",
			path:        filepath.Join(root, "samples", "..", "..", "etc", "passwd"),
			wantErr:     true,
			errContains: "outside the project root",
		},
		{
			name:        "other directory",
			path:        filepath.Join(other, "sample.obj"),
			wantErr:     true,
			errContains: "outside the project root",
		},
		{
			name:        "null byte",
			path:        filepath.Join(root, "sam\x00ple.obj"),
			wantErr:     true,
			errContains: "null byte",
		},
		{
			name:        "empty",
			path:        "",
			wantErr:     true,
			errContains: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Within(root, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Within() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Within() error = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

func TestWithin_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on Windows")
	}

	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "samples")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	if _, err := Within(root, filepath.Join(link, "0", "sample.obj")); err == nil {
		t.Error("Within() accepted a path through a symlink leaving the root")
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/data/project/samples/0/sample.obj", ".../0/sample.obj"},
		{"/file.txt", "file.txt"},
		{"file.txt", "file.txt"},
		{"dir/file.txt", ".../dir/file.txt"},
		{"/data/project/", ".../data/project"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.input); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
