package config

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"time"

	logx "xsnotify/pkg/logx"
)

// saveErrInterval bounds how often persistent save failures are logged.
// A dead disk otherwise produces one error per loop iteration.
const saveErrInterval = 30 * time.Second

// Store owns the on-disk representation of the config: primary file, backup
// sibling and quarantined corrupt copies. The in-memory *Config held by the
// bridge loop stays authoritative no matter what the disk does.
type Store struct {
	path string
	log  logx.Logger

	saveErrs *logx.Throttle
}

func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		path:     path,
		log:      log,
		saveErrs: logx.NewThrottle(saveErrInterval),
	}
}

func (s *Store) Path() string       { return s.path }
func (s *Store) BackupPath() string { return s.path + ".bak" }

// Load reads the primary file, falling back through backup, quarantine and
// defaults. It never fails: the worst case is a default config.
func (s *Store) Load() *Config { return s.LoadWith(nil) }

// LoadWith is Load with a caller-supplied fallback used when both primary
// and backup are unreadable. Hot-reload passes the running config here so a
// corrupted edit does not reset live state.
func (s *Store) LoadWith(fallback *Config) *Config {
	cfg, err := s.parseFile(s.path)
	if err == nil {
		return cfg
	}
	if os.IsNotExist(err) {
		return Default()
	}
	s.log.Warn("config parse failed, trying backup",
		logx.String("path", s.path), logx.Err(err))

	bcfg, berr := s.parseFile(s.BackupPath())
	if berr == nil {
		if werr := s.writeFile(bcfg); werr != nil {
			s.log.Warn("config restore write failed",
				logx.String("path", s.path), logx.Err(werr))
		} else {
			s.log.Info("config restored from backup",
				logx.String("backup", s.BackupPath()))
		}
		return bcfg
	}

	// Both copies are bad. Move the primary aside so the next save starts
	// clean and the broken file stays available for inspection.
	quarantine := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if rerr := os.Rename(s.path, quarantine); rerr != nil {
		s.log.Warn("config quarantine rename failed",
			logx.String("path", s.path), logx.Err(rerr))
	} else {
		s.log.Warn("config quarantined",
			logx.String("path", s.path), logx.String("moved_to", quarantine))
	}

	if fallback != nil {
		return fallback
	}
	return Default()
}

// Save persists cfg with an atomic replace, keeping the previous primary as
// backup. Failures are logged (throttled) and never surfaced: disk state is
// best-effort, memory is authoritative.
func (s *Store) Save(cfg *Config) {
	if err := s.save(cfg); err != nil {
		if s.saveErrs.Allow() {
			s.log.Error("config save failed",
				logx.String("path", s.path), logx.Err(err))
		}
	}
}

func (s *Store) save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := encodeForPath(s.path, cfg)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	// Backup the current primary before it is replaced. A failed backup is
	// logged but does not stop the save.
	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.BackupPath()); err != nil {
			s.log.Warn("config backup failed",
				logx.String("backup", s.BackupPath()), logx.Err(err))
		}
	}

	return os.Rename(tmp, s.path)
}

func (s *Store) parseFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, b)
}

// Parse decodes and normalizes a config document (JSON, or YAML when the
// path says so).
func Parse(path string, data []byte) (*Config, error) {
	jb, err := coerceToJSON(path, data)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(jb, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) writeFile(cfg *Config) error {
	data, err := encodeForPath(s.path, cfg)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Hash fingerprints a config's serialized content. The bridge loop uses it
// to skip reload work when a change event was caused by its own save.
func Hash(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
