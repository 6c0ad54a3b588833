package testsupport

import (
	"context"
	"testing"

	"trawler/internal/config"
	"trawler/internal/store"
)

// MustOpenStore opens a store against the test config and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustInsertItem inserts an item and fails the test on error.
func MustInsertItem(t testing.TB, st *store.Store, externalID, title string, duration int) *store.Item {
	t.Helper()

	item, err := st.InsertItem(context.Background(), externalID, title, "Test Source", duration, "")
	if err != nil {
		t.Fatalf("insert item %s: %v", externalID, err)
	}
	return item
}
