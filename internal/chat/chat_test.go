package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
)

func TestMarkReadIdempotent(t *testing.T) {
	m := &Message{ClientID: "c1"}
	if !m.MarkRead("bob") {
		t.Error("first MarkRead should report a change")
	}
	if m.MarkRead("bob") {
		t.Error("second MarkRead should be a no-op")
	}
	if len(m.ReadBy) != 1 {
		t.Errorf("readBy = %v, want single entry", m.ReadBy)
	}
	if !m.HasRead("bob") || m.HasRead("carol") {
		t.Error("HasRead membership wrong")
	}
}

func TestIsActivelyViewingWindowEdge(t *testing.T) {
	c := &Chat{ActiveViewers: map[string]int64{"bob": 10_000}}

	// Seen exactly at the window edge still counts as active.
	if !c.IsActivelyViewing("bob", 15_000, 5000) {
		t.Error("edge of window should count as viewing")
	}
	if c.IsActivelyViewing("bob", 15_001, 5000) {
		t.Error("one past the window should not count")
	}
	if c.IsActivelyViewing("carol", 15_000, 5000) {
		t.Error("unknown user should not count")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    ErrorKind
		recoverable bool
		userText    string
	}{
		{"unavailable", ErrUnavailable, ErrKindNetwork, true, ErrTextOffline},
		{"wrapped unavailable", fmt.Errorf("write: %w", ErrUnavailable), ErrKindNetwork, true, ErrTextOffline},
		{"deadline", context.DeadlineExceeded, ErrKindNetwork, true, ErrTextOffline},
		{"net error", &net.OpError{Op: "dial", Err: os.ErrDeadlineExceeded}, ErrKindNetwork, true, ErrTextOffline},
		{"permission", ErrPermissionDenied, ErrKindPermission, false, ErrTextSendFailed},
		{"validation", ErrInvalidArgument, ErrKindValidation, false, ErrTextSendFailed},
		{"unknown", errors.New("boom"), ErrKindUnknown, false, ErrTextSendFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := Classify(tt.err)
			if se.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", se.Kind, tt.wantKind)
			}
			if se.Recoverable() != tt.recoverable {
				t.Errorf("recoverable = %v, want %v", se.Recoverable(), tt.recoverable)
			}
			if se.UserText() != tt.userText {
				t.Errorf("user text = %q, want %q", se.UserText(), tt.userText)
			}
			if !errors.Is(se, tt.err) {
				t.Error("classified error should unwrap to the cause")
			}
		})
	}
}

func TestClassifyPassesThroughSendError(t *testing.T) {
	orig := &SendError{Kind: ErrKindPermission, Err: ErrPermissionDenied}
	if got := Classify(fmt.Errorf("retry: %w", orig)); got != orig {
		t.Errorf("Classify should return the existing SendError, got %v", got)
	}
}
