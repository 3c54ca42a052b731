package sync

import (
	"testing"

	"github.com/reena96/messageai/internal/chat"
)

const window = int64(5000)

func confirmed(id, sender, text string, ts int64) chat.Message {
	return chat.Message{
		ID: id, ClientID: id, ChatID: "c1", SenderID: sender, Text: text,
		Timestamp: ts, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed,
	}
}

func localEcho(clientID, sender, text string, ts int64) chat.Message {
	return chat.Message{
		ClientID: clientID, ChatID: "c1", SenderID: sender, Text: text,
		Timestamp: ts, RawStatus: chat.RawSent, Lifecycle: chat.Confirmed,
	}
}

func TestMergeSupersedesWithinWindow(t *testing.T) {
	snapshot := []chat.Message{confirmed("s1", "alice", "hello", 1200)}
	locals := []chat.Message{localEcho("tmp1", "alice", "hello", 1000)}

	res := Merge(snapshot, locals, window)

	if len(res.Superseded) != 1 || res.Superseded[0] != "tmp1" {
		t.Fatalf("superseded = %v, want [tmp1]", res.Superseded)
	}
	merged := res.Merged()
	if len(merged) != 1 || merged[0].ID != "s1" {
		t.Errorf("merged = %+v, want just s1", merged)
	}
}

func TestMergeKeepsInFlight(t *testing.T) {
	// Snapshot arrives before the local write settles: the in-flight entry
	// must survive even though it matches by sender, text, and window.
	snapshot := []chat.Message{confirmed("s1", "alice", "hello", 1200)}
	locals := []chat.Message{{
		ClientID: "tmp1", ChatID: "c1", SenderID: "alice", Text: "hello",
		Timestamp: 1000, RawStatus: chat.RawSending, Lifecycle: chat.Pending,
	}}

	res := Merge(snapshot, locals, window)

	if len(res.Superseded) != 0 {
		t.Fatalf("superseded = %v, want none for in-flight entry", res.Superseded)
	}
	if len(res.Surviving) != 1 {
		t.Fatalf("surviving = %v", res.Surviving)
	}
}

func TestMergeKeepsFailed(t *testing.T) {
	snapshot := []chat.Message{confirmed("s1", "alice", "hello", 1200)}
	locals := []chat.Message{{
		ClientID: "tmp1", ChatID: "c1", SenderID: "alice", Text: "hello",
		Timestamp: 1000, RawStatus: chat.RawFailed, Lifecycle: chat.Failed,
	}}

	res := Merge(snapshot, locals, window)

	if len(res.Superseded) != 0 {
		t.Fatal("failed entry must not be superseded; it requires user action")
	}
}

func TestMergeOutsideWindowSurvives(t *testing.T) {
	snapshot := []chat.Message{confirmed("s1", "alice", "hello", 10000)}
	locals := []chat.Message{localEcho("tmp1", "alice", "hello", 1000)}

	res := Merge(snapshot, locals, window)

	if len(res.Superseded) != 0 {
		t.Fatal("entries outside the window must not merge")
	}
	if len(res.Merged()) != 2 {
		t.Errorf("merged = %+v, want both entries", res.Merged())
	}
}

// The window boundary is exclusive: a delta of exactly the window does not
// match.
func TestMergeWindowBoundaryExclusive(t *testing.T) {
	snapshot := []chat.Message{confirmed("s1", "alice", "edge", 1000+window)}
	locals := []chat.Message{localEcho("tmp1", "alice", "edge", 1000)}

	res := Merge(snapshot, locals, window)
	if len(res.Superseded) != 0 {
		t.Fatal("delta exactly at the window must not match")
	}

	snapshot[0].Timestamp = 1000 + window - 1
	res = Merge(snapshot, locals, window)
	if len(res.Superseded) != 1 {
		t.Fatal("delta just inside the window must match")
	}
}

func TestMergeRequiresSenderAndText(t *testing.T) {
	snapshot := []chat.Message{
		confirmed("s1", "bob", "hello", 1000),
		confirmed("s2", "alice", "different", 1000),
	}
	locals := []chat.Message{localEcho("tmp1", "alice", "hello", 1000)}

	res := Merge(snapshot, locals, window)
	if len(res.Superseded) != 0 {
		t.Fatal("neither sender-mismatch nor text-mismatch may merge")
	}
}

// Same text sent twice within the window: both locals stay distinct and each
// authoritative message is claimed at most once, nearest first.
func TestMergeDistinctClaims(t *testing.T) {
	snapshot := []chat.Message{
		confirmed("s1", "alice", "hi", 1100),
		confirmed("s2", "alice", "hi", 2100),
	}
	locals := []chat.Message{
		localEcho("tmp1", "alice", "hi", 1000),
		localEcho("tmp2", "alice", "hi", 2000),
	}

	res := Merge(snapshot, locals, window)

	if len(res.Superseded) != 2 {
		t.Fatalf("superseded = %v, want both", res.Superseded)
	}
	if len(res.Merged()) != 2 {
		t.Errorf("merged = %+v, want exactly the two authoritative rows", res.Merged())
	}
}

func TestMergeOneSnapshotRowClaimsOnce(t *testing.T) {
	// Two locals, one authoritative candidate: only the closer local merges.
	snapshot := []chat.Message{confirmed("s1", "alice", "hi", 1050)}
	locals := []chat.Message{
		localEcho("tmp1", "alice", "hi", 1000),
		localEcho("tmp2", "alice", "hi", 1500),
	}

	res := Merge(snapshot, locals, window)

	if len(res.Superseded) != 1 || res.Superseded[0] != "tmp1" {
		t.Fatalf("superseded = %v, want [tmp1] (insertion order claims first)", res.Superseded)
	}
	if len(res.Surviving) != 1 || res.Surviving[0].ClientID != "tmp2" {
		t.Errorf("surviving = %+v, want tmp2", res.Surviving)
	}
}

// Applying the same snapshot twice produces an identical merged list.
func TestMergeIdempotent(t *testing.T) {
	snapshot := []chat.Message{
		confirmed("s1", "alice", "one", 1000),
		confirmed("s2", "bob", "two", 2000),
	}
	locals := []chat.Message{localEcho("tmp1", "alice", "one", 900)}

	first := Merge(snapshot, locals, window)

	// After the first pass the superseded local is gone; replaying the
	// snapshot over the remaining locals must change nothing.
	second := Merge(snapshot, first.Surviving, window)

	if len(second.Merged()) != len(first.Merged()) {
		t.Fatalf("second pass grew the list: %d vs %d", len(second.Merged()), len(first.Merged()))
	}
	for i := range first.Merged() {
		if first.Merged()[i].ClientID != second.Merged()[i].ClientID {
			t.Errorf("merged[%d] differs between passes", i)
		}
	}
}

func TestMergeOrdering(t *testing.T) {
	snapshot := []chat.Message{
		confirmed("s1", "bob", "old", 1000),
		confirmed("s2", "bob", "older still confirmed later", 2000),
	}
	locals := []chat.Message{
		localEcho("tmp1", "alice", "newest", 500), // client clock skewed early
	}

	merged := Merge(snapshot, locals, window).Merged()
	// Authoritative rows first in server order, local survivors appended
	// last regardless of their client timestamps.
	want := []string{"s1", "s2", "tmp1"}
	for i, id := range want {
		if merged[i].ClientID != id {
			t.Errorf("merged[%d] = %q, want %q", i, merged[i].ClientID, id)
		}
	}
}
