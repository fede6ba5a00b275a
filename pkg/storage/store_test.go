package storage

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/pagerelay/pagerelay/pkg/types"
)

// openStores returns one store per partition backend so shared behavior is
// tested against both.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "sync.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			in := types.Credential{APIKey: "sk-test-1234567890", Model: "gpt-4o"}
			if err := store.Set("credentials", in); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			var out types.Credential
			found, err := store.Get("credentials", &out)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !found {
				t.Fatal("Expected key to exist")
			}
			if out != in {
				t.Errorf("Round trip mismatch: got %+v, want %+v", out, in)
			}
		})
	}
}

func TestStoreMissingKey(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var out string
			found, err := store.Get("no-such-key", &out)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if found {
				t.Error("Expected missing key to report found=false")
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set("k", "v"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := store.Delete("k"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}

			var out string
			found, _ := store.Get("k", &out)
			if found {
				t.Error("Expected key to be gone after delete")
			}

			// Deleting again is a no-op.
			if err := store.Delete("k"); err != nil {
				t.Errorf("Delete of missing key failed: %v", err)
			}
		})
	}
}

func TestStoreOverwriteIsLastWriteWins(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set("k", "first"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := store.Set("k", "second"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			var out string
			if _, err := store.Get("k", &out); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if out != "second" {
				t.Errorf("Expected last write to win, got %q", out)
			}
		})
	}
}

func TestStoreKeysByPrefix(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, tabID := range []int{3, 1, 2} {
				if err := store.Set(TabContentKey(tabID), "content"); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
			}
			if err := store.Set("unrelated", "x"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			keys, err := store.Keys("extractedContent:")
			if err != nil {
				t.Fatalf("Keys failed: %v", err)
			}
			want := []string{
				TabContentKey(1),
				TabContentKey(2),
				TabContentKey(3),
			}
			if len(keys) != len(want) {
				t.Fatalf("Expected %d keys, got %v", len(want), keys)
			}
			for i, k := range want {
				if keys[i] != k {
					t.Errorf("keys[%d] = %q, want %q", i, keys[i], k)
				}
			}
		})
	}
}

func TestTabKeysAreDisjointAcrossTabs(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			contentA := types.ExtractedContent{ContentType: types.ContentTypeGeneral, Title: "tab A"}
			contentB := types.ExtractedContent{ContentType: types.ContentTypeReddit, Title: "tab B"}

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				store.Set(TabContentKey(1), contentA)
			}()
			go func() {
				defer wg.Done()
				store.Set(TabContentKey(2), contentB)
			}()
			wg.Wait()

			var outA, outB types.ExtractedContent
			if _, err := store.Get(TabContentKey(1), &outA); err != nil {
				t.Fatalf("Get tab 1 failed: %v", err)
			}
			if _, err := store.Get(TabContentKey(2), &outB); err != nil {
				t.Fatalf("Get tab 2 failed: %v", err)
			}

			if outA.Title != "tab A" || outB.Title != "tab B" {
				t.Errorf("Cross-tab contamination: got %q and %q", outA.Title, outB.Title)
			}
		})
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store.Set("k", map[string]string{"a": "b"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}

	var out map[string]string
	found, err := reopened.Get("k", &out)
	if err != nil || !found {
		t.Fatalf("Get after reopen: found=%v err=%v", found, err)
	}
	if out["a"] != "b" {
		t.Errorf("Expected persisted value, got %v", out)
	}
}
