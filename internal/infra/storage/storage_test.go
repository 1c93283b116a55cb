package storage

import (
	"os"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
)

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "session.json")

	if err := AtomicWriteFile(path, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("AtomicWriteFile() error = %v", err)
	}
	if err := AtomicWriteFile(path, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("AtomicWriteFile() overwrite error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"v":2}` {
		t.Errorf("content = %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != DefaultFilePerm {
		t.Errorf("perm = %o, want %o", perm, DefaultFilePerm)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestEnsureDir_NoDirectory(t *testing.T) {
	if err := EnsureDir("file.json"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
}

func TestOpenDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "reader.bbolt")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("probe"))
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestOpenDB_EmptyPath(t *testing.T) {
	if _, err := OpenDB("  "); err == nil {
		t.Fatal("OpenDB() must reject an empty path")
	}
}
