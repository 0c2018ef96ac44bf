// Package config owns the persisted engine configuration: the document
// model, durable load/save with corruption recovery, and change watching.
package config

import (
	"encoding/json"
	"errors"
	"time"

	"xsnotify/internal/app"
)

// Config is the root persisted document.
//
// Unknown keys (top level and inside the filters/learning/transport
// sections) survive a load/save round trip so newer builds can add fields
// without older builds destroying them.
type Config struct {
	Filters             Filters   `json:"filters"`
	Learning            Learning  `json:"learning"`
	Transport           Transport `json:"transport"`
	History             History   `json:"history"`
	Log                 Log       `json:"log"`
	PollIntervalSeconds float64   `json:"poll_interval_seconds"`

	extra map[string]json.RawMessage
}

// Filters holds the per-source allow/block policy. Block wins over allow.
type Filters struct {
	Allow []string `json:"allow"`
	Block []string `json:"block"`

	extra map[string]json.RawMessage
}

// Learning tracks the one-trial-per-source state for the current session
// epoch. Pending is a diagnostic surface and is never pruned automatically.
type Learning struct {
	Enabled      bool              `json:"enabled"`
	LastReset    string            `json:"last_reset"`
	Pending      map[string]string `json:"pending"`
	ShownSession map[string]string `json:"shown_session"`

	// RelearnCron optionally re-arms the one-trial grant on a schedule
	// (cron spec). Empty disables it.
	RelearnCron string `json:"relearn_cron"`

	extra map[string]json.RawMessage
}

// Transport addresses the overlay endpoint and the display parameters
// forwarded with every notification.
type Transport struct {
	Endpoint       string  `json:"endpoint"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
	Opacity        float64 `json:"opacity"`

	extra map[string]json.RawMessage
}

// History configures the optional forwarding history store.
// Driver "" or "none" disables it.
type History struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

// Log configures the diagnostic output.
type Log struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

const (
	defaultPollSeconds    = 1.0
	defaultTimeoutSeconds = 3.0
	defaultOpacity        = 0.6
)

func Default() *Config {
	return &Config{
		Filters: Filters{
			Allow: []string{"com.squirrel.Discord.Discord"},
			Block: []string{},
		},
		Learning: Learning{
			Enabled:      true,
			Pending:      map[string]string{},
			ShownSession: map[string]string{},
		},
		Transport: Transport{
			Endpoint:       app.DefaultEndpoint,
			TimeoutSeconds: defaultTimeoutSeconds,
			Opacity:        defaultOpacity,
		},
		Log:                 Log{Level: "info"},
		PollIntervalSeconds: defaultPollSeconds,
	}
}

// PollInterval returns the loop pacing, clamped to a sane positive value.
func (c *Config) PollInterval() time.Duration {
	s := c.PollIntervalSeconds
	if s <= 0 {
		s = defaultPollSeconds
	}
	return time.Duration(s * float64(time.Second))
}

// Timeout returns the overlay display time in seconds, clamped.
func (t Transport) Timeout() float64 {
	if t.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds
	}
	return t.TimeoutSeconds
}

// DisplayOpacity returns the overlay opacity, clamped to [0,1].
func (t Transport) DisplayOpacity() float64 {
	if t.Opacity < 0 || t.Opacity > 1 {
		return defaultOpacity
	}
	return t.Opacity
}

var errNotObject = errors.New("config: document is not an object")

// ---- JSON round trip ----
//
// Decoding is tolerant by key: a missing key takes its default, a
// structurally wrong value for the container-typed keys (allow/block/
// pending/shown_session) coerces to an empty container, other mismatches
// fall back to the default for that key. Keys we do not recognize are kept
// verbatim and re-emitted on save.

func (c *Config) UnmarshalJSON(b []byte) error {
	obj, err := decodeObject(b)
	if err != nil {
		return err
	}

	*c = *Default()

	d := Default()
	takeSection(obj, "filters", &c.Filters, d.Filters)
	takeSection(obj, "learning", &c.Learning, d.Learning)
	takeSection(obj, "transport", &c.Transport, d.Transport)
	takeSection(obj, "history", &c.History, d.History)
	takeSection(obj, "log", &c.Log, d.Log)
	takeScalar(obj, "poll_interval_seconds", &c.PollIntervalSeconds)
	c.extra = remaining(obj)
	return nil
}

func (c Config) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"filters":               c.Filters,
		"learning":              c.Learning,
		"transport":             c.Transport,
		"history":               c.History,
		"log":                   c.Log,
		"poll_interval_seconds": c.PollIntervalSeconds,
	}
	for k, v := range c.extra {
		m[k] = v
	}
	return json.Marshal(m)
}

func (f *Filters) UnmarshalJSON(b []byte) error {
	obj, err := decodeObject(b)
	if err != nil {
		return err
	}
	d := Default().Filters
	f.Allow = takeStringList(obj, "allow", d.Allow)
	f.Block = takeStringList(obj, "block", d.Block)
	f.extra = remaining(obj)
	return nil
}

func (f Filters) MarshalJSON() ([]byte, error) {
	m := map[string]any{"allow": f.Allow, "block": f.Block}
	for k, v := range f.extra {
		m[k] = v
	}
	return json.Marshal(m)
}

func (l *Learning) UnmarshalJSON(b []byte) error {
	obj, err := decodeObject(b)
	if err != nil {
		return err
	}
	d := Default().Learning
	l.Enabled = d.Enabled
	takeScalar(obj, "enabled", &l.Enabled)
	l.LastReset = d.LastReset
	takeScalar(obj, "last_reset", &l.LastReset)
	l.Pending = takeStringMap(obj, "pending")
	l.ShownSession = takeStringMap(obj, "shown_session")
	l.RelearnCron = ""
	takeScalar(obj, "relearn_cron", &l.RelearnCron)
	l.extra = remaining(obj)
	return nil
}

func (l Learning) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"enabled":       l.Enabled,
		"last_reset":    l.LastReset,
		"pending":       l.Pending,
		"shown_session": l.ShownSession,
		"relearn_cron":  l.RelearnCron,
	}
	for k, v := range l.extra {
		m[k] = v
	}
	return json.Marshal(m)
}

func (t *Transport) UnmarshalJSON(b []byte) error {
	obj, err := decodeObject(b)
	if err != nil {
		return err
	}
	d := Default().Transport
	*t = d
	takeScalar(obj, "endpoint", &t.Endpoint)
	takeScalar(obj, "timeout_seconds", &t.TimeoutSeconds)
	takeScalar(obj, "opacity", &t.Opacity)
	t.extra = remaining(obj)
	return nil
}

func (t Transport) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"endpoint":        t.Endpoint,
		"timeout_seconds": t.TimeoutSeconds,
		"opacity":         t.Opacity,
	}
	for k, v := range t.extra {
		m[k] = v
	}
	return json.Marshal(m)
}

// ---- decode helpers ----

func decodeObject(b []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}

// takeSection decodes obj[key] into dst, falling back to def when the key is
// absent or the value cannot be decoded. The key is consumed either way.
func takeSection[T any](obj map[string]json.RawMessage, key string, dst *T, def T) {
	raw, ok := obj[key]
	if !ok {
		*dst = def
		return
	}
	delete(obj, key)
	if err := json.Unmarshal(raw, dst); err != nil {
		*dst = def
	}
}

// takeScalar decodes obj[key] into dst, leaving dst untouched when the key is
// absent or the value has the wrong type.
func takeScalar[T any](obj map[string]json.RawMessage, key string, dst *T) {
	raw, ok := obj[key]
	if !ok {
		return
	}
	delete(obj, key)
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = v
}

// takeStringList is tolerant the way the filter lists need: absent takes the
// default, a wrong-typed value coerces to an empty list.
func takeStringList(obj map[string]json.RawMessage, key string, def []string) []string {
	raw, ok := obj[key]
	if !ok {
		return append([]string(nil), def...)
	}
	delete(obj, key)
	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return []string{}
	}
	if v == nil {
		return []string{}
	}
	return v
}

// takeStringMap: absent or wrong-typed both yield an empty map.
func takeStringMap(obj map[string]json.RawMessage, key string) map[string]string {
	raw, ok := obj[key]
	if ok {
		delete(obj, key)
		var v map[string]string
		if err := json.Unmarshal(raw, &v); err == nil && v != nil {
			return v
		}
	}
	return map[string]string{}
}

func remaining(obj map[string]json.RawMessage) map[string]json.RawMessage {
	if len(obj) == 0 {
		return nil
	}
	return obj
}
