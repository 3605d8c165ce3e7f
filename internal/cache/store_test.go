package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestStoreInsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	local := writeCachedFile(t, store.Root(), "1700000000000.png")

	if err := store.Insert("https://cdn.x/a.png", local, ""); err != nil {
		t.Fatalf("insert error: %v", err)
	}

	entry, ok := store.Lookup("https://cdn.x/a.png")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if entry.LocalPath != local {
		t.Fatalf("local path mismatch: %s", entry.LocalPath)
	}
	if entry.LastAccess.IsZero() {
		t.Fatalf("last access should be set")
	}
}

func TestStoreLookupMissing(t *testing.T) {
	store := newTestStore(t)
	if _, ok := store.Lookup("https://cdn.x/missing.png"); ok {
		t.Fatalf("expected miss")
	}
}

func TestStoreTouchUpdatesRecency(t *testing.T) {
	mock := clock.NewMock()
	store, err := NewStore(t.TempDir(), WithInMemoryIndex(), WithClock(mock))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Insert("https://cdn.x/a.json", filepath.Join(store.Root(), "a.json"), ""); err != nil {
		t.Fatalf("insert error: %v", err)
	}
	before, _ := store.Lookup("https://cdn.x/a.json")

	mock.Add(time.Minute)
	if err := store.Touch("https://cdn.x/a.json"); err != nil {
		t.Fatalf("touch error: %v", err)
	}
	after, _ := store.Lookup("https://cdn.x/a.json")
	if got := after.LastAccess.Sub(before.LastAccess); got != time.Minute {
		t.Fatalf("expected last access to advance by 1m, got %s", got)
	}

	if err := store.Touch("https://cdn.x/none.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing entry, got %v", err)
	}
}

func TestStoreRemoveDeletesFile(t *testing.T) {
	store := newTestStore(t)
	local := writeCachedFile(t, store.Root(), "remove.bin")
	if err := store.Insert("https://cdn.x/remove.bin", local, ""); err != nil {
		t.Fatalf("insert error: %v", err)
	}
	if err := store.Remove("https://cdn.x/remove.bin"); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, ok := store.Lookup("https://cdn.x/remove.bin"); ok {
		t.Fatalf("expected miss after remove")
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatalf("cached file should be deleted, stat err=%v", err)
	}
	if err := store.Remove("https://cdn.x/remove.bin"); err != nil {
		t.Fatalf("removing a missing entry should be a no-op: %v", err)
	}
}

func TestStoreRemoveBundle(t *testing.T) {
	store := newTestStore(t)
	dir, err := store.EnsureBundleFolder("dlc")
	if err != nil {
		t.Fatalf("ensure bundle folder: %v", err)
	}
	if dir != filepath.Join(store.Root(), "dlc") {
		t.Fatalf("unexpected bundle dir %s", dir)
	}

	for _, name := range []string{"a.json", "b.png"} {
		local := writeCachedFile(t, dir, name)
		if err := store.Insert("https://cdn.x/remote/dlc/"+name, local, "dlc"); err != nil {
			t.Fatalf("insert error: %v", err)
		}
	}
	other := writeCachedFile(t, store.Root(), "c.png")
	if err := store.Insert("https://cdn.x/c.png", other, ""); err != nil {
		t.Fatalf("insert error: %v", err)
	}

	removed, err := store.RemoveBundle("dlc")
	if err != nil {
		t.Fatalf("remove bundle: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed entries, got %d", removed)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("bundle folder should be deleted")
	}

	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("entries error: %v", err)
	}
	if len(entries) != 1 || entries[0].URL != "https://cdn.x/c.png" {
		t.Fatalf("unexpected remaining entries: %+v", entries)
	}
}

func TestStoreRejectsInvalidBundleNames(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"", ".index", "a/b", `a\b`} {
		if _, err := store.EnsureBundleFolder(name); !errors.Is(err, ErrInvalidBundleName) {
			t.Fatalf("expected ErrInvalidBundleName for %q, got %v", name, err)
		}
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Insert("https://cdn.x/keep.txt", filepath.Join(root, "keep.txt"), ""); err != nil {
		t.Fatalf("insert error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	reopened, err := NewStore(root)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()
	if _, ok := reopened.Lookup("https://cdn.x/keep.txt"); !ok {
		t.Fatalf("entry should survive reopen")
	}
}

func TestStoreClosedRejectsWrites(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if err := store.Insert("https://cdn.x/a", "/tmp/a", ""); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if _, ok := store.Lookup("https://cdn.x/a"); ok {
		t.Fatalf("closed store should miss")
	}
}

// newTestStore returns a Store backed by a temporary directory and an in-memory index.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), WithInMemoryIndex())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func writeCachedFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write cached file: %v", err)
	}
	return path
}
