package outbox

import (
	"path/filepath"
	"testing"

	"github.com/reena96/messageai/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAddRemove(t *testing.T) {
	db := testDB(t)
	logger, _ := zap.NewDevelopment()
	q, err := NewQueue(db, logger)
	if err != nil {
		t.Fatal(err)
	}

	e := store.RetryEntry{ClientID: "m1", ChatID: "c1", SenderID: "alice", Body: "hello"}
	if err := q.Add(e); err != nil {
		t.Fatal(err)
	}
	if err := q.Add(e); err != nil {
		t.Fatal(err)
	}
	if q.Size() != 1 {
		t.Errorf("size = %d, want 1 (duplicate add is no-op)", q.Size())
	}
	if !q.Contains("m1") {
		t.Error("queue should contain m1")
	}

	if err := q.Remove("m1"); err != nil {
		t.Fatal(err)
	}
	if q.Size() != 0 || q.Contains("m1") {
		t.Error("queue should be empty after remove")
	}
	// Removing again is a no-op.
	if err := q.Remove("m1"); err != nil {
		t.Fatal(err)
	}
}

func TestOrderPreserved(t *testing.T) {
	db := testDB(t)
	q, err := NewQueue(db, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Add(store.RetryEntry{ClientID: id, ChatID: "c1", SenderID: "s", Body: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Remove("b"); err != nil {
		t.Fatal(err)
	}

	entries := q.Entries()
	if len(entries) != 2 || entries[0].ClientID != "a" || entries[1].ClientID != "c" {
		t.Errorf("entries = %+v, want [a c]", entries)
	}
}

func TestRestoredFromStore(t *testing.T) {
	db := testDB(t)
	q1, err := NewQueue(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q1.Add(store.RetryEntry{ClientID: "m1", ChatID: "c1", SenderID: "s", Body: "persisted"}); err != nil {
		t.Fatal(err)
	}

	// A fresh queue over the same store sees the entry.
	q2, err := NewQueue(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if q2.Size() != 1 || !q2.Contains("m1") {
		t.Errorf("restored queue size = %d, want 1 with m1", q2.Size())
	}
}

func TestInflightSuppression(t *testing.T) {
	db := testDB(t)
	q, err := NewQueue(db, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !q.BeginRetry("m1") {
		t.Fatal("first BeginRetry should succeed")
	}
	if q.BeginRetry("m1") {
		t.Error("concurrent BeginRetry for the same id should be suppressed")
	}
	q.EndRetry("m1")
	if !q.BeginRetry("m1") {
		t.Error("BeginRetry should succeed again after EndRetry")
	}
}
