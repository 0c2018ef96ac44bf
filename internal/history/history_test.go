package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"xsnotify/internal/config"
	logx "xsnotify/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " None "} {
		st, err := Open(config.History{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("driver %q: expected nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(config.History{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestSQLiteRequiresPath(t *testing.T) {
	if _, err := Open(config.History{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatalf("sqlite without a path should fail")
	}
}

func TestSQLiteAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(config.History{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{At: base, SourceKey: "App", Title: "first", Reason: "allowed", Sent: true},
		{At: base.Add(time.Second), SourceKey: "Spam", Title: "second", Reason: "blocked", Sent: false},
		{At: base.Add(2 * time.Second), SourceKey: "App", Title: "third", Reason: "allowed", Sent: true},
	}
	for i, e := range entries {
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].Title != "third" || got[1].Title != "second" {
		t.Fatalf("order = %q, %q", got[0].Title, got[1].Title)
	}
	if !got[0].Sent || got[1].Sent {
		t.Fatalf("sent flags = %v/%v", got[0].Sent, got[1].Sent)
	}
	if !got[0].At.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("timestamp round trip: %v", got[0].At)
	}
}

func TestSQLiteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	cfg := config.History{Driver: "sqlite", Path: path}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Append(context.Background(), Entry{SourceKey: "App", Title: "kept"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, err := st.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].Title != "kept" {
		t.Fatalf("got %+v", got)
	}
}
