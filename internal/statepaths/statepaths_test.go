package statepaths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureSecureDirCreatesAndLocksDownPermissions(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "state")

	if err := EnsureSecureDir(dir); err != nil {
		t.Fatalf("ensure secure dir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("expected 0700, got %o", info.Mode().Perm())
	}

	if err := os.Chmod(dir, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := EnsureSecureDir(dir); err != nil {
		t.Fatalf("ensure secure dir again: %v", err)
	}
	info, err = os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("expected permissions retightened to 0700, got %o", info.Mode().Perm())
	}
}

func TestEnsureSecureDirRejectsSymlink(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real")
	if err := os.Mkdir(real, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := EnsureSecureDir(link); err == nil {
		t.Fatalf("expected symlink to be rejected")
	}
}
