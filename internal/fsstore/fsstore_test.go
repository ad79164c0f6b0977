package fsstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildLockPath(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), ".fslocks")
	got, err := BuildLockPath(root, "state.main")
	if err != nil {
		t.Fatalf("BuildLockPath() error = %v", err)
	}
	want := filepath.Join(root, "state.main.lck")
	if got != want {
		t.Fatalf("BuildLockPath() = %q, want %q", got, want)
	}
}

func TestBuildLockPathInvalidKey(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), ".fslocks")
	invalid := []string{
		"",
		"State.main",
		"state/main",
		".state.main",
		"state.main.",
		"state main",
	}
	for _, key := range invalid {
		key := key
		t.Run(key, func(t *testing.T) {
			t.Parallel()
			_, err := BuildLockPath(root, key)
			if err == nil {
				t.Fatalf("BuildLockPath(%q) expected error", key)
			}
			if !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("BuildLockPath(%q) error = %v, want ErrInvalidPath", key, err)
			}
		})
	}
}

func TestReadWriteJSONAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	type payload struct {
		Name string `json:"name"`
	}
	in := payload{Name: "alpha"}
	if err := WriteJSONAtomic(path, in, FileOptions{}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}
	var out payload
	ok, err := ReadJSON(path, &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !ok {
		t.Fatalf("ReadJSON() exists = false, want true")
	}
	if out.Name != in.Name {
		t.Fatalf("ReadJSON() value = %+v, want %+v", out, in)
	}
}

func TestMutateIndex(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	indexPath := filepath.Join(root, "router", "index.json")
	lockPath, err := BuildLockPath(filepath.Join(root, ".fslocks"), "index.router")
	if err != nil {
		t.Fatalf("BuildLockPath() error = %v", err)
	}

	err = MutateIndex(context.Background(), indexPath, lockPath, FileOptions{}, func(f *IndexFile) error {
		f.Entries["thread:123"] = IndexEntry{
			Ref:       "codex:resume-abc",
			Rev:       1,
			Hash:      "sha256:abc",
			UpdatedAt: time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		t.Fatalf("MutateIndex() error = %v", err)
	}

	f, ok, err := ReadIndex(indexPath)
	if err != nil {
		t.Fatalf("ReadIndex() error = %v", err)
	}
	if !ok {
		t.Fatalf("ReadIndex() exists = false, want true")
	}
	if f.Version != defaultIndexVersion {
		t.Fatalf("ReadIndex() version = %d, want %d", f.Version, defaultIndexVersion)
	}
	if _, exists := f.Entries["thread:123"]; !exists {
		t.Fatalf("ReadIndex() missing entry thread:123")
	}
}
