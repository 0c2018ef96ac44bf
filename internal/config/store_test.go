package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	logx "xsnotify/pkg/logx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "config.json"), logx.Nop())
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s := newTestStore(t)
	if !reflect.DeepEqual(s.Load(), Default()) {
		t.Fatalf("missing file should load defaults")
	}
}

func TestSaveThenLoad(t *testing.T) {
	s := newTestStore(t)
	cfg := Default()
	cfg.Filters.Allow = []string{"App"}
	cfg.Learning.Pending["App"] = "App Display"
	s.Save(cfg)

	got := s.Load()
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("load after save:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestSaveKeepsBackupOfPreviousPrimary(t *testing.T) {
	s := newTestStore(t)
	first := Default()
	first.Filters.Allow = []string{"First"}
	s.Save(first)

	second := Default()
	second.Filters.Allow = []string{"Second"}
	s.Save(second)

	b, err := os.ReadFile(s.BackupPath())
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	backup, err := Parse(s.BackupPath(), b)
	if err != nil {
		t.Fatalf("backup parse: %v", err)
	}
	if !reflect.DeepEqual(backup.Filters.Allow, []string{"First"}) {
		t.Fatalf("backup allow = %#v, want previous primary", backup.Filters.Allow)
	}
}

func TestCorruptPrimaryRestoredFromBackup(t *testing.T) {
	s := newTestStore(t)
	good := Default()
	good.Filters.Allow = []string{"FromBackup"}
	s.Save(good)
	// Promote the good content to the backup slot, then corrupt the primary.
	if err := copyFile(s.Path(), s.BackupPath()); err != nil {
		t.Fatalf("copy: %v", err)
	}
	writeConfig(t, s.Path(), "{ this is not json")

	got := s.Load()
	if !reflect.DeepEqual(got.Filters.Allow, []string{"FromBackup"}) {
		t.Fatalf("allow = %#v, want backup content", got.Filters.Allow)
	}

	// The primary must have been rewritten and parse identically to the backup.
	b, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("primary unreadable after restore: %v", err)
	}
	primary, err := Parse(s.Path(), b)
	if err != nil {
		t.Fatalf("restored primary does not parse: %v", err)
	}
	if !reflect.DeepEqual(primary, got) {
		t.Fatalf("restored primary differs from backup content")
	}
}

func TestCorruptPrimaryAndBackupFallsBackToDefaults(t *testing.T) {
	s := newTestStore(t)
	writeConfig(t, s.Path(), "not json at all")
	writeConfig(t, s.BackupPath(), "also broken")

	got := s.Load()
	if !reflect.DeepEqual(got, Default()) {
		t.Fatalf("expected defaults, got %+v", got)
	}

	// The broken primary should be quarantined aside.
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt-") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no quarantined file found")
	}
}

func TestCorruptEverythingUsesCallerFallback(t *testing.T) {
	s := newTestStore(t)
	writeConfig(t, s.Path(), "broken")

	running := Default()
	running.Filters.Allow = []string{"LiveState"}
	got := s.LoadWith(running)
	if !reflect.DeepEqual(got, running) {
		t.Fatalf("hot-reload fallback not honored, got %+v", got)
	}
}

func TestSaveIntoMissingDirectoryCreatesIt(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "nested", "deeper", "config.json"), logx.Nop())
	s.Save(Default())
	if !reflect.DeepEqual(s.Load(), Default()) {
		t.Fatalf("save into nested dir failed")
	}
}

func TestHashStableAcrossReload(t *testing.T) {
	s := newTestStore(t)
	cfg := Default()
	cfg.Learning.Pending["App"] = "App"
	s.Save(cfg)

	reloaded := s.Load()
	if Hash(cfg) != Hash(reloaded) {
		t.Fatalf("hash changed across save/load")
	}
	reloaded.Filters.Block = append(reloaded.Filters.Block, "Other")
	if Hash(cfg) == Hash(reloaded) {
		t.Fatalf("hash did not change after mutation")
	}
}
