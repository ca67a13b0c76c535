package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/panyam/authsession/client"
)

func TestFSTokenStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := NewFSTokenStore(path, "", "http://localhost:8080")
	if err != nil {
		t.Fatalf("NewFSTokenStore() error = %v", err)
	}

	// Initially empty
	pair, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !pair.IsEmpty() {
		t.Errorf("expected empty pair, got %+v", pair)
	}

	want := client.TokenPair{AccessToken: "access", RefreshToken: "refresh"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	pair, _ = store.Load(ctx)
	if pair != want {
		t.Errorf("Load() = %+v, want %+v", pair, want)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	pair, _ = store.Load(ctx)
	if !pair.IsEmpty() || pair.HasRefreshToken() {
		t.Errorf("expected both tokens cleared, got %+v", pair)
	}
}

func TestFSTokenStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	store1, _ := NewFSTokenStore(path, "", "http://localhost:8080/api/v1")
	if err := store1.Save(ctx, client.TokenPair{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Same server with a different path resolves to the same key
	store2, err := NewFSTokenStore(path, "", "http://localhost:8080")
	if err != nil {
		t.Fatalf("NewFSTokenStore() error = %v", err)
	}
	pair, _ := store2.Load(ctx)
	if pair.AccessToken != "a1" || pair.RefreshToken != "r1" {
		t.Errorf("expected persisted pair, got %+v", pair)
	}
}

func TestFSTokenStore_ServersAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	a, _ := NewFSTokenStore(path, "", "http://a.example.com")
	b, _ := NewFSTokenStore(path, "", "http://b.example.com")

	if err := a.Save(ctx, client.TokenPair{AccessToken: "a", RefreshToken: "ra"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	pair, _ := b.Load(ctx)
	if !pair.IsEmpty() {
		t.Errorf("expected server b to have no tokens, got %+v", pair)
	}

	reopened, _ := NewFSTokenStore(path, "", "http://a.example.com")
	if got := reopened.Servers(); len(got) != 1 || got[0] != "http://a.example.com" {
		t.Errorf("Servers() = %v", got)
	}
}

func TestFSTokenStore_FilePermissions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")

	store, _ := NewFSTokenStore(path, "", "http://localhost")
	if err := store.Save(ctx, client.TokenPair{AccessToken: "x", RefreshToken: "y"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}

	// no temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only tokens.json, found %d entries", len(entries))
	}
}

func TestFSTokenStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFSTokenStore(path, "", "http://localhost"); err == nil {
		t.Error("expected error for corrupt tokens file")
	}
}

// blockTokensFile turns path into a non-empty directory so the final rename
// of a flush fails.
func blockTokensFile(t *testing.T, path string) {
	t.Helper()
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "blocker"), 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
}

func TestFSTokenStore_ClearFailureKeepsTokens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := NewFSTokenStore(path, "", "http://localhost:8080")
	if err != nil {
		t.Fatalf("NewFSTokenStore() error = %v", err)
	}
	want := client.TokenPair{AccessToken: "access", RefreshToken: "refresh"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	blockTokensFile(t, path)

	if err := store.Clear(ctx); err == nil {
		t.Fatal("expected Clear() to fail")
	}
	pair, _ := store.Load(ctx)
	if pair != want {
		t.Errorf("Load() after failed Clear() = %+v, want %+v", pair, want)
	}
	if servers := store.Servers(); len(servers) != 1 {
		t.Errorf("expected 1 server after failed Clear(), got %v", servers)
	}
}

func TestFSTokenStore_SaveFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := NewFSTokenStore(path, "", "http://localhost:8080")
	if err != nil {
		t.Fatalf("NewFSTokenStore() error = %v", err)
	}
	want := client.TokenPair{AccessToken: "access", RefreshToken: "refresh"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	blockTokensFile(t, path)

	if err := store.Save(ctx, client.TokenPair{AccessToken: "a2", RefreshToken: "r2"}); err == nil {
		t.Fatal("expected Save() to fail")
	}
	pair, _ := store.Load(ctx)
	if pair != want {
		t.Errorf("Load() after failed Save() = %+v, want %+v", pair, want)
	}
}
