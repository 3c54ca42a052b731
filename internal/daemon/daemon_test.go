package daemon

import (
	"path/filepath"
	"testing"

	"github.com/reena96/messageai/internal/lock"
	"github.com/reena96/messageai/internal/store"
)

func TestProbeAddrFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"ws://localhost:8080/sync", "localhost:8080", false},
		{"wss://sync.example.com/v1", "sync.example.com:443", false},
		{"ws://sync.example.com", "sync.example.com:80", false},
		{"http://sync.example.com:9000", "sync.example.com:9000", false},
		{"", "", true},
		{"not a url", "", true},
	}
	for _, tt := range tests {
		got, err := probeAddrFromURL(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("probeAddrFromURL(%q) = %q, want error", tt.url, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("probeAddrFromURL(%q): %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("probeAddrFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSessionStoreAssembly(t *testing.T) {
	dir := t.TempDir()

	lk, err := lock.Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	// A second daemon for the same session must be refused.
	if _, err := lock.Acquire(dir); err == nil {
		t.Fatal("second lock acquire should fail")
	}

	db, err := store.Open(filepath.Join(dir, "messageai.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Version == 0 {
		t.Error("migrations left version 0")
	}
}
