// Package filter decides, per source, whether a notification is forwarded.
//
// There is no cached per-source state: every evaluation runs against the
// current config, so out-of-band config edits (a human promoting a pending
// source to the allow list) take effect on the next notification.
package filter

import (
	"time"

	"xsnotify/internal/config"
)

// Reason explains a decision; values surface in logs and the history store.
type Reason string

const (
	ReasonBlocked          Reason = "blocked"
	ReasonAllowed          Reason = "allowed"
	ReasonLearningAllow    Reason = "learning_allow"
	ReasonLearningSuppress Reason = "learning_suppress"
	ReasonNotInAllow       Reason = "not_in_allow"
	ReasonDefaultAllow     Reason = "default_allow"
)

// Decision is produced fresh per evaluation and never persisted; only its
// mutation side effect on learning.pending / learning.shown_session is.
type Decision struct {
	Allow   bool
	Reason  Reason
	Mutated bool
}

// Evaluate runs the per-source state machine:
//
//	block list        -> deny  (block wins over allow)
//	allow list        -> allow
//	learning enabled  -> one trial per source per session epoch
//	allow list set    -> deny (not listed)
//	otherwise         -> allow
func Evaluate(cfg *config.Config, key, displayName string, now time.Time) Decision {
	if contains(cfg.Filters.Block, key) {
		return Decision{Allow: false, Reason: ReasonBlocked}
	}
	if contains(cfg.Filters.Allow, key) {
		return Decision{Allow: true, Reason: ReasonAllowed}
	}

	if cfg.Learning.Enabled {
		mutated := false
		if cfg.Learning.Pending == nil {
			cfg.Learning.Pending = map[string]string{}
		}
		if _, ok := cfg.Learning.Pending[key]; !ok {
			name := displayName
			if name == "" {
				name = key
			}
			cfg.Learning.Pending[key] = name
			mutated = true
		}
		if cfg.Learning.ShownSession == nil {
			cfg.Learning.ShownSession = map[string]string{}
		}
		if _, ok := cfg.Learning.ShownSession[key]; !ok {
			cfg.Learning.ShownSession[key] = now.Format(time.RFC3339)
			return Decision{Allow: true, Reason: ReasonLearningAllow, Mutated: true}
		}
		return Decision{Allow: false, Reason: ReasonLearningSuppress, Mutated: mutated}
	}

	if len(cfg.Filters.Allow) > 0 {
		return Decision{Allow: false, Reason: ReasonNotInAllow}
	}
	return Decision{Allow: true, Reason: ReasonDefaultAllow}
}

// ResetSession starts a new learning epoch when sessionID differs from the
// recorded one: shown_session is cleared (pending is not) and the session is
// stamped. Returns whether anything changed; repeat calls with the same id
// are no-ops. The bridge runs this at startup and once per iteration so a
// config hot-reloaded from disk cannot resurrect a stale epoch marker.
func ResetSession(cfg *config.Config, sessionID string) bool {
	if cfg.Learning.LastReset == sessionID {
		return false
	}
	cfg.Learning.LastReset = sessionID
	cfg.Learning.ShownSession = map[string]string{}
	return true
}

// ClearShown re-arms the one-trial grant for every source without touching
// pending or the epoch marker. Used by the relearn schedule.
func ClearShown(cfg *config.Config) bool {
	if len(cfg.Learning.ShownSession) == 0 {
		return false
	}
	cfg.Learning.ShownSession = map[string]string{}
	return true
}

func contains(list []string, key string) bool {
	for _, v := range list {
		if v == key {
			return true
		}
	}
	return false
}
