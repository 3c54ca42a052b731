package store

import (
	"path/filepath"
	"testing"

	"github.com/reena96/messageai/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	m := &chat.Message{
		ChatID: "c1", ClientID: "m1", SenderID: "alice", Text: "v1",
		Timestamp: 1000, RawStatus: chat.RawSending, Lifecycle: chat.Pending,
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Text = "v2"
	m.RawStatus = chat.RawSent
	m.Lifecycle = chat.Confirmed
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Text != "v2" || msgs[0].RawStatus != chat.RawSent {
		t.Errorf("message = %+v, want updated text/status", msgs[0])
	}
}

func TestListMessagesOrdering(t *testing.T) {
	db := testDB(t)

	// Two confirmed rows with out-of-order inserts, one optimistic.
	rows := []chat.Message{
		{ChatID: "c1", ClientID: "b", ID: "b", SenderID: "bob", Text: "second", Timestamp: 2000, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed},
		{ChatID: "c1", ClientID: "a", ID: "a", SenderID: "bob", Text: "first", Timestamp: 1000, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed},
		{ChatID: "c1", ClientID: "opt", SenderID: "alice", Text: "pending", Timestamp: 1500, RawStatus: chat.RawSending, Lifecycle: chat.Pending},
	}
	for i := range rows {
		if err := db.UpsertMessage(&rows[i]); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	// Confirmed in timestamp order, then the optimistic entry last even
	// though its client timestamp falls between the confirmed ones.
	want := []string{"first", "second", "pending"}
	for i, w := range want {
		if msgs[i].Text != w {
			t.Errorf("msgs[%d].Text = %q, want %q", i, msgs[i].Text, w)
		}
	}
}

func TestLocalEntries(t *testing.T) {
	db := testDB(t)

	msgs := []chat.Message{
		{ChatID: "c1", ClientID: "p1", SenderID: "alice", Text: "one", Timestamp: 1, RawStatus: chat.RawSending, Lifecycle: chat.Pending},
		{ChatID: "c1", ClientID: "f1", SenderID: "alice", Text: "two", Timestamp: 2, RawStatus: chat.RawFailed, Lifecycle: chat.Failed},
		{ChatID: "c1", ClientID: "ok", ID: "srv", SenderID: "alice", Text: "done", Timestamp: 3, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed},
	}
	for i := range msgs {
		if err := db.UpsertMessage(&msgs[i]); err != nil {
			t.Fatal(err)
		}
	}

	local, err := db.LocalEntries("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(local) != 2 {
		t.Fatalf("got %d local entries, want 2", len(local))
	}
}

func TestFindMessage(t *testing.T) {
	db := testDB(t)
	m := chat.Message{ChatID: "c1", ClientID: "cid", ID: "sid", SenderID: "a", Text: "x",
		Timestamp: 1, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed}
	if err := db.UpsertMessage(&m); err != nil {
		t.Fatal(err)
	}

	byClient, err := db.FindMessage("c1", "cid")
	if err != nil || byClient == nil {
		t.Fatalf("by client id: %v %v", byClient, err)
	}
	byServer, err := db.FindMessage("c1", "sid")
	if err != nil || byServer == nil {
		t.Fatalf("by server id: %v %v", byServer, err)
	}
	missing, err := db.FindMessage("c1", "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestApplyMerge(t *testing.T) {
	db := testDB(t)

	opt := chat.Message{ChatID: "c1", ClientID: "tmp", SenderID: "alice", Text: "hi",
		Timestamp: 1000, RawStatus: chat.RawSending, Lifecycle: chat.Pending}
	if err := db.UpsertMessage(&opt); err != nil {
		t.Fatal(err)
	}

	confirmed := chat.Message{ChatID: "c1", ClientID: "srv1", ID: "srv1", SenderID: "alice",
		Text: "hi", Timestamp: 1200, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed}
	if err := db.ApplyMerge("c1", []chat.Message{confirmed}, []string{"tmp"}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 after merge", len(msgs))
	}
	if msgs[0].ClientID != "srv1" || msgs[0].Lifecycle != chat.Confirmed {
		t.Errorf("merged message = %+v", msgs[0])
	}
}

func TestChatRoundTrip(t *testing.T) {
	db := testDB(t)

	c := &chat.Chat{
		ID:            "c1",
		Participants:  []string{"alice", "bob"},
		UnreadCounts:  map[string]int{"bob": 2},
		ActiveViewers: map[string]int64{"alice": 12345},
		Typing:        map[string]int64{},
		LastMessage:   "hey",
		LastMessageAt: 999,
	}
	if err := db.UpsertChat(c); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("chat not found")
	}
	if len(got.Participants) != 2 || got.UnreadCounts["bob"] != 2 || got.ActiveViewers["alice"] != 12345 {
		t.Errorf("chat = %+v", got)
	}

	missing, err := db.GetChat("nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for unknown chat")
	}
}

func TestRetryQueuePersistence(t *testing.T) {
	db := testDB(t)

	e := &RetryEntry{ClientID: "m1", ChatID: "c1", SenderID: "alice", Body: "hello"}
	if err := db.QueueRetry(e); err != nil {
		t.Fatal(err)
	}
	// Re-queueing the same id is a no-op.
	if err := db.QueueRetry(e); err != nil {
		t.Fatal(err)
	}

	entries, err := db.RetryEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Body != "hello" {
		t.Errorf("body = %q", entries[0].Body)
	}

	if err := db.RemoveRetry("m1"); err != nil {
		t.Fatal(err)
	}
	entries, err = db.RetryEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries after remove, want 0", len(entries))
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	msgs := []chat.Message{
		{ChatID: "c1", ClientID: "1", ID: "1", SenderID: "a", Text: "the quick brown fox", Timestamp: 1, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed},
		{ChatID: "c1", ClientID: "2", ID: "2", SenderID: "a", Text: "lazy dog", Timestamp: 2, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed},
		{ChatID: "c2", ClientID: "3", ID: "3", SenderID: "a", Text: "another fox", Timestamp: 3, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed},
	}
	for i := range msgs {
		if err := db.UpsertMessage(&msgs[i]); err != nil {
			t.Fatal(err)
		}
	}

	results, err := db.SearchMessages("fox", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	results, err = db.SearchMessages("fox", "c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d scoped results, want 1", len(results))
	}
}
