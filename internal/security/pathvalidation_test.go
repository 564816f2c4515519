package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	if err := os.MkdirAll(safeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(unsafeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	unsafeFile := filepath.Join(unsafeDir, "secret.txt")
	if err := os.WriteFile(unsafeFile, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	symlinkPath := filepath.Join(safeDir, "evil-symlink")
	if err := os.Symlink(unsafeDir, symlinkPath); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"valid path within directory", filepath.Join(tmpDir, "zones.json"), tmpDir, false},
		{"valid nested path", filepath.Join(tmpDir, "zones", "yard.json"), tmpDir, false},
		{"path traversal with ..", filepath.Join(tmpDir, "..", "zones.json"), tmpDir, true},
		{"path traversal at start", "../../../etc/passwd", tmpDir, true},
		{"absolute path outside safe dir", "/etc/passwd", tmpDir, true},
		{"symlink to outside dir", filepath.Join(symlinkPath, "secret.txt"), safeDir, true},
		{"symlink itself", symlinkPath, safeDir, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tc.filePath, tc.safeDir)
			if (err != nil) != tc.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) = %v, wantError %v",
					tc.filePath, tc.safeDir, err, tc.wantError)
			}
		})
	}
}
