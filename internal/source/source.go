// Package source defines the boundary to the OS notification listener.
//
// The platform-specific listener (WinRT on Windows) lives outside this
// module; the engine only consumes the Source interface. Records arrive in
// one canonical shape regardless of which listener produced them.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrUnavailable marks the listener as permanently unusable (missing
// platform API, revoked access). The bridge treats it as fatal.
var ErrUnavailable = errors.New("notification source unavailable")

// Record is one notification as yielded by the listener.
type Record struct {
	// SourceKey is the stable identity of the emitting application
	// (e.g. an AppUserModelId). May be empty.
	SourceKey string `json:"source_key"`
	// DisplayName is the human label of the emitting application.
	DisplayName string `json:"display_name"`
	// ID is the platform record id, when the platform provides one.
	ID string `json:"id"`
	// CreatedAt is the platform creation time, when available.
	CreatedAt time.Time `json:"created_at"`
	// Lines are the text elements extracted from the payload, in order.
	Lines []string `json:"lines"`
}

// AppKey returns the identity used for filtering: source key, else display
// name, else "unknown".
func (r Record) AppKey() string {
	if r.SourceKey != "" {
		return r.SourceKey
	}
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return "unknown"
}

var unstableSeq atomic.Uint64

// DedupKey composes the identity used to suppress re-delivery. Preference
// order: platform id, creation time, and as a last resort a per-process
// sequence number. The sequence fallback is not stable across restarts or
// even across repeated polls of the same record; callers should log it as an
// unstable identity rather than rely on it.
func (r Record) DedupKey(appKey string) (key string, unstable bool) {
	if r.ID != "" {
		return appKey + ":" + r.ID, false
	}
	if !r.CreatedAt.IsZero() {
		return appKey + ":" + r.CreatedAt.Format(time.RFC3339Nano), false
	}
	return fmt.Sprintf("%s:unstable-%d", appKey, unstableSeq.Add(1)), true
}

// Source is the notification listener the bridge polls.
type Source interface {
	// RequestAccess asks the platform for listener access. A false return
	// with nil error means the user denied access. ErrUnavailable means the
	// listener cannot work at all.
	RequestAccess(ctx context.Context) (bool, error)

	// Poll returns the current batch of notifications. Transient failures
	// return an ordinary error; the bridge logs and retries.
	Poll(ctx context.Context) ([]Record, error)
}
