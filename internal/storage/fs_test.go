package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestPutAndGet(t *testing.T) {
	s := tempStore(t)
	content := []byte(`[{"id":"1"}]`)
	if err := s.Put("projects", content); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("projects")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "projects.json")); err != nil {
		t.Errorf("expected projects.json on disk: %v", err)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := tempStore(t)
	_, err := s.Get("archivedProjects")
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	_ = s.Put("gone", []byte("bye"))
	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("gone"); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist after delete, got %v", err)
	}
	if err := s.Delete("gone"); err != nil {
		t.Errorf("second delete should be a no-op: %v", err)
	}
}

func TestKeys(t *testing.T) {
	s := tempStore(t)
	_ = s.Put("projects", []byte("a"))
	_ = s.Put("archivedProjects", []byte("b"))
	_ = os.WriteFile(filepath.Join(s.Root(), "notes.txt"), []byte("ignored"), 0o644)

	entries, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Key != "archivedProjects" || entries[1].Key != "projects" {
		t.Errorf("keys = %q, %q", entries[0].Key, entries[1].Key)
	}
	if entries[0].Checksum == "" || entries[0].Checksum == entries[1].Checksum {
		t.Errorf("unexpected checksums: %+v", entries)
	}
}

func TestInvalidKeysRejected(t *testing.T) {
	s := tempStore(t)

	cases := []string{
		"../../etc/passwd",
		"../outside",
		"/etc/shadow",
		"a/b",
		"",
		".hidden",
	}
	for _, k := range cases {
		if _, err := s.Get(k); err == nil {
			t.Errorf("expected error for key %q", k)
		}
		if err := s.Put(k, []byte("x")); err == nil {
			t.Errorf("expected error for put to %q", k)
		}
	}
}

func TestAtomicPutLeavesNoTempFiles(t *testing.T) {
	s := tempStore(t)
	_ = s.Put("projects", []byte("original"))

	if err := s.Put("projects", []byte("updated")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ := s.Get("projects")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestKeyForPath(t *testing.T) {
	if k, ok := KeyForPath("/data/projects.json"); !ok || k != "projects" {
		t.Errorf("KeyForPath = %q, %v", k, ok)
	}
	if _, ok := KeyForPath("/data/.statusboard-tmp-123"); ok {
		t.Error("temp files must not map to keys")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/statusboard-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "statusboard-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
