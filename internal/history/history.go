// Package history keeps an optional on-disk log of forwarding decisions so
// a user can inspect what was sent or suppressed, and why, after the fact.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"xsnotify/internal/config"
	logx "xsnotify/pkg/logx"
)

var ErrDisabled = errors.New("history disabled")

// Entry is one recorded decision. Keep it compact and schema-stable.
type Entry struct {
	At        time.Time
	SourceKey string
	Title     string
	Reason    string
	Sent      bool
}

// Store is the persistence API the bridge uses. Failures never stop the
// loop; the bridge logs and moves on.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Open initializes the configured store. Returns (nil, nil) when history is
// disabled.
func Open(cfg config.History, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
