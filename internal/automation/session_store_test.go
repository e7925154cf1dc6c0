package automation

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("ops@example.com")
	b := Fingerprint("ops@example.com")

	if a != b {
		t.Error("fingerprint must be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if strings.Contains(a, "ops") || a == Fingerprint("other@example.com") {
		t.Error("fingerprint must not expose or collide the account")
	}
}

func TestSessionStore_IsFresh(t *testing.T) {
	store := NewSessionStore(t.TempDir(), 24*time.Hour, nil)
	const account = "ops@example.com"

	if store.IsFresh(account) {
		t.Error("missing file must not be fresh")
	}

	if err := store.Save(newFakePage(), account); err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.Contains(store.Path(account), account) {
		t.Errorf("path leaks account id: %s", store.Path(account))
	}

	touch := func(age time.Duration) {
		mtime := time.Now().Add(-age)
		if err := os.Chtimes(store.Path(account), mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	touch(23 * time.Hour)
	if !store.IsFresh(account) {
		t.Error("23h old session should be fresh")
	}

	touch(25 * time.Hour)
	if store.IsFresh(account) {
		t.Error("25h old session should be stale")
	}
	if _, err := os.Stat(store.Path(account)); err != nil {
		t.Error("stale session file must not be deleted")
	}
}

func TestSessionStore_LoadCorrupt(t *testing.T) {
	store := NewSessionStore(t.TempDir(), time.Hour, nil)
	if err := os.WriteFile(store.Path("a@b.c"), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load("a@b.c"); !errors.Is(err, ErrCorruptSession) {
		t.Errorf("expected ErrCorruptSession, got %v", err)
	}
}

func TestSessionStore_Encrypted(t *testing.T) {
	store := NewSessionStore(t.TempDir(), time.Hour, reverseCipher{})
	const account = "ops@example.com"

	if err := store.Save(newFakePage(), account); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(store.Path(account))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "cookies") {
		t.Error("state must not be stored in plain text")
	}

	state, err := store.Load(account)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(state) != `{"cookies":[],"origins":[]}` {
		t.Errorf("unexpected state %q", state)
	}
}
