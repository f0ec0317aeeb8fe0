package transport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_LoadAbsent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	creds, err := store.Load("missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds != nil {
		t.Error("Load of absent credentials should return nil, nil")
	}
}

func TestFileStore_SaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	want := []byte(`{"noiseKey":"abc"}`)
	if err := store.Save("s1", &Credentials{Data: want}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	creds, err := store.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds == nil || string(creds.Data) != string(want) {
		t.Fatalf("Load = %v, want stored blob", creds)
	}

	if err := store.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "s1")); !os.IsNotExist(err) {
		t.Error("Delete should remove the session directory")
	}

	creds, err = store.Load("s1")
	if err != nil {
		t.Fatalf("Load after Delete: %v", err)
	}
	if creds != nil {
		t.Error("Load after Delete should return nil")
	}
}

func TestFileStore_DeleteAbsent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Delete("never-existed"); err != nil {
		t.Errorf("Delete of absent credentials should not error, got %v", err)
	}
}

func TestFileStore_SaveNil(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Save("s1", nil); err == nil {
		t.Error("Save with nil credentials should return error")
	}
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("NewFileStore with empty dir should return error")
	}
}
