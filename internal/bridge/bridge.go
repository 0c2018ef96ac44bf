// Package bridge wires the notification source, filter engine, dedup cache
// and overlay transport into the supervising poll loop.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"xsnotify/internal/config"
	"xsnotify/internal/dedup"
	"xsnotify/internal/filter"
	"xsnotify/internal/history"
	"xsnotify/internal/source"
	logx "xsnotify/pkg/logx"
)

// Fatal startup/reload conditions; main maps these to exit code 1.
var (
	ErrAccessDenied = errors.New("notification access denied")
	ErrNoEndpoint   = errors.New("transport endpoint not configured")
)

// pollFloor is the minimum pacing after a failed poll, so a flapping source
// cannot busy-loop the bridge.
const pollFloor = time.Second

// errLogInterval bounds send-failure logging during an overlay outage.
const errLogInterval = 30 * time.Second

// Sender is the overlay transport as the loop sees it.
type Sender interface {
	SetEndpoint(endpoint string)
	Send(ctx context.Context, title, content string, timeout, opacity float64) error
	Close()
}

// Options collects the bridge's collaborators. Store, Source and Sender are
// required; the rest are optional.
type Options struct {
	Store   *config.Store
	Source  source.Source
	Sender  Sender
	History history.Store
	Log     logx.Logger

	// LogSvc, when set, gets the config's log section re-applied on reload.
	LogSvc *logx.Service

	// Changes delivers config file change ticks (see config.Watcher).
	Changes <-chan struct{}

	// Invocation overrides, applied once before the first persistence check.
	EndpointOverride     string
	PollIntervalOverride float64

	// SessionID identifies the learning epoch; defaults to a fresh UUID.
	SessionID string

	// Now is the loop's clock; defaults to time.Now.
	Now func() time.Time
}

// Bridge owns the single in-memory config and the dedup cache for the
// process lifetime. All mutation happens on the loop goroutine.
type Bridge struct {
	store   *config.Store
	src     source.Source
	sender  Sender
	hist    history.Store
	log     logx.Logger
	logSvc  *logx.Service
	changes <-chan struct{}

	endpointOverride string
	pollOverride     float64
	sessionID        string
	now              func() time.Time

	cfg     *config.Config
	cfgHash uint64
	cache   *dedup.Cache

	sendErrs     *logx.Throttle
	unstableWarn *logx.Throttle

	cronParser  cron.Parser
	relearnSpec string
	relearnCron *cron.Cron
	relearnCh   chan struct{}
}

func New(opts Options) *Bridge {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Bridge{
		store:            opts.Store,
		src:              opts.Source,
		sender:           opts.Sender,
		hist:             opts.History,
		log:              log,
		logSvc:           opts.LogSvc,
		changes:          opts.Changes,
		endpointOverride: opts.EndpointOverride,
		pollOverride:     opts.PollIntervalOverride,
		sessionID:        sessionID,
		now:              now,
		cache:            dedup.NewCache(),
		sendErrs:         logx.NewThrottle(errLogInterval),
		unstableWarn:     logx.NewThrottle(errLogInterval),
		cronParser:       cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		relearnCh:        make(chan struct{}, 1),
	}
}

// Run starts the bridge and loops until ctx is canceled (returns nil) or a
// fatal condition is hit (returns the error).
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.startup(ctx); err != nil {
		return err
	}
	defer b.stopRelearn()
	defer b.sender.Close()

	b.log.Info("bridge running",
		logx.String("endpoint", b.cfg.Transport.Endpoint),
		logx.Duration("poll_interval", b.cfg.PollInterval()))

	for {
		if err := b.iterate(ctx); err != nil {
			return err
		}
		if !sleepCtx(ctx, b.cfg.PollInterval()) {
			return nil
		}
	}
}

func (b *Bridge) startup(ctx context.Context) error {
	b.cfg = b.store.Load()

	if b.endpointOverride != "" {
		b.cfg.Transport.Endpoint = b.endpointOverride
	}
	if b.pollOverride > 0 {
		b.cfg.PollIntervalSeconds = b.pollOverride
	}

	if filter.ResetSession(b.cfg, b.sessionID) {
		b.store.Save(b.cfg)
	}
	b.cfgHash = config.Hash(b.cfg)

	granted, err := b.src.RequestAccess(ctx)
	if err != nil {
		return fmt.Errorf("request access: %w", err)
	}
	if !granted {
		return ErrAccessDenied
	}

	if b.cfg.Transport.Endpoint == "" {
		return ErrNoEndpoint
	}
	b.sender.SetEndpoint(b.cfg.Transport.Endpoint)
	b.applyRelearn(b.cfg.Learning.RelearnCron)
	return nil
}

// iterate runs one loop pass: reload, epoch checks, poll, forward, persist,
// prune. A non-nil return is fatal.
func (b *Bridge) iterate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return nil
	}

	if err := b.maybeReload(); err != nil {
		return err
	}

	if filter.ResetSession(b.cfg, b.sessionID) {
		b.store.Save(b.cfg)
		b.cfgHash = config.Hash(b.cfg)
	}

	select {
	case <-b.relearnCh:
		if filter.ClearShown(b.cfg) {
			b.log.Info("learning re-armed by schedule")
			b.store.Save(b.cfg)
			b.cfgHash = config.Hash(b.cfg)
		}
	default:
	}

	records, err := b.src.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, source.ErrUnavailable) {
			return fmt.Errorf("poll: %w", err)
		}
		b.log.Error("notification poll failed", logx.Err(err))
		// Run sleeps the poll interval after this pass; only top up to the
		// floor here so a failed poll is not paced twice.
		if wait := pollFloor - b.cfg.PollInterval(); wait > 0 {
			sleepCtx(ctx, wait)
		}
		return nil
	}

	changed := false
	for _, rec := range records {
		if d, ok := b.handle(ctx, rec); ok && d.Mutated {
			changed = true
		}
	}

	if changed {
		b.store.Save(b.cfg)
		b.cfgHash = config.Hash(b.cfg)
	}
	b.cache.Prune(b.now(), dedup.DefaultMaxAge, dedup.DefaultMaxSize)
	return nil
}

// handle runs one record through dedup, filter and the sender. ok is false
// when the record was a duplicate.
func (b *Bridge) handle(ctx context.Context, rec source.Record) (filter.Decision, bool) {
	appKey := rec.AppKey()
	key, unstable := rec.DedupKey(appKey)
	if unstable && b.unstableWarn.Allow() {
		b.log.Warn("notification has no stable identity, dedup is best-effort",
			logx.String("app", appKey))
	}
	if b.cache.Seen(key) {
		return filter.Decision{}, false
	}
	b.cache.Mark(key, b.now())

	title, content := displayText(rec)
	d := filter.Evaluate(b.cfg, appKey, rec.DisplayName, b.now())

	if !d.Allow {
		b.log.Info("notification suppressed",
			logx.String("app", appKey), logx.String("reason", string(d.Reason)))
		b.record(ctx, appKey, title, string(d.Reason), false)
		return d, true
	}

	err := b.sender.Send(ctx, title, content, b.cfg.Transport.Timeout(), b.cfg.Transport.DisplayOpacity())
	if err != nil {
		if b.sendErrs.Allow() {
			b.log.Error("notification send failed",
				logx.String("app", appKey), logx.Err(err))
		}
	} else {
		b.log.Info("notification sent", logx.String("app", appKey))
	}
	b.record(ctx, appKey, title, string(d.Reason), err == nil)
	return d, true
}

// maybeReload adopts a changed config file. The running config is the
// fallback so a corrupted edit keeps live state; an empty endpoint after
// reload is as fatal as at startup.
func (b *Bridge) maybeReload() error {
	if b.changes == nil {
		return nil
	}
	select {
	case <-b.changes:
	default:
		return nil
	}

	ncfg := b.store.LoadWith(b.cfg)
	h := config.Hash(ncfg)
	if h == b.cfgHash {
		// Our own save, or a no-op edit.
		return nil
	}

	if ncfg.Transport.Endpoint == "" {
		return ErrNoEndpoint
	}
	if ncfg.Transport.Endpoint != b.cfg.Transport.Endpoint {
		b.sender.SetEndpoint(ncfg.Transport.Endpoint)
	}
	if b.logSvc != nil {
		b.logSvc.Apply(logx.Config{
			Level:   ncfg.Log.Level,
			Console: true,
			File:    logx.FileConfig{Enabled: ncfg.Log.File != "", Path: ncfg.Log.File},
		})
	}
	b.applyRelearn(ncfg.Learning.RelearnCron)

	b.cfg = ncfg
	b.cfgHash = h
	b.log.Info("config reloaded",
		logx.String("endpoint", ncfg.Transport.Endpoint),
		logx.Duration("poll_interval", ncfg.PollInterval()))
	return nil
}

// applyRelearn (re)starts the optional cron that re-arms learning. The job
// only pushes a tick; the clear itself runs on the loop goroutine so config
// stays single-writer.
func (b *Bridge) applyRelearn(spec string) {
	if spec == b.relearnSpec {
		return
	}
	b.stopRelearn()
	b.relearnSpec = spec
	if spec == "" {
		return
	}

	c := cron.New(cron.WithParser(b.cronParser))
	_, err := c.AddFunc(spec, func() {
		select {
		case b.relearnCh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		b.log.Warn("invalid relearn schedule",
			logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	b.relearnCron = c
	b.log.Info("relearn schedule active", logx.String("spec", spec))
}

func (b *Bridge) stopRelearn() {
	if b.relearnCron != nil {
		<-b.relearnCron.Stop().Done()
		b.relearnCron = nil
	}
}

func (b *Bridge) record(ctx context.Context, appKey, title, reason string, sent bool) {
	if b.hist == nil {
		return
	}
	err := b.hist.Append(ctx, history.Entry{
		At:        b.now(),
		SourceKey: appKey,
		Title:     title,
		Reason:    reason,
		Sent:      sent,
	})
	if err != nil {
		b.log.Debug("history append failed", logx.Err(err))
	}
}

// displayText extracts what the overlay shows: a known display name becomes
// the title with every text line as content; otherwise the first line is the
// title and the rest the content; a record with no text at all falls back to
// the source key.
func displayText(rec source.Record) (title, content string) {
	if rec.DisplayName != "" {
		return rec.DisplayName, strings.Join(rec.Lines, "\n")
	}
	if len(rec.Lines) > 0 {
		return rec.Lines[0], strings.Join(rec.Lines[1:], "\n")
	}
	return rec.AppKey(), ""
}

// sleepCtx waits for d unless ctx ends first; returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
