package seen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "cvewatch/pkg/logx"
)

func openTestStore(t *testing.T, cfg Config) Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "seen.json")
	}
	s, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func entry(id, asset string, published time.Time, critical bool) Entry {
	return Entry{ID: id, Asset: asset, PublishedAt: published, Critical: critical}
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, Config{DefaultMax: 5})
	now := time.Now().UTC()

	if !s.IsNew("Ubuntu 22.04", "CVE-2025-0001") {
		t.Fatal("expected unseen id to be new")
	}
	if !s.Register(entry("CVE-2025-0001", "Ubuntu 22.04", now, false)) {
		t.Fatal("first register should succeed")
	}
	if s.Register(entry("CVE-2025-0001", "Ubuntu 22.04", now, false)) {
		t.Fatal("second register must be a no-op")
	}
	if s.IsNew("Ubuntu 22.04", "CVE-2025-0001") {
		t.Fatal("registered id must not be new")
	}
}

func TestGlobalIDUniqueness(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, Config{DefaultMax: 5})
	now := time.Now().UTC()

	if !s.Register(entry("CVE-2025-0042", "Ubuntu 22.04", now, false)) {
		t.Fatal("register under first asset")
	}
	// Same advisory matching a second asset must not double-notify.
	if s.IsNew("Mozilla Firefox", "CVE-2025-0042") {
		t.Fatal("id known under another asset must not be new")
	}
	if s.Register(entry("CVE-2025-0042", "Mozilla Firefox", now, false)) {
		t.Fatal("cross-asset register must be rejected")
	}
	if s.Count("Mozilla Firefox") != 0 {
		t.Fatal("second asset must hold no entry")
	}
}

func TestCapEvictsOldest(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, Config{DefaultMax: 2})
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	s.Register(entry("CVE-1", "Oracle Database 19c", base, false))
	s.Register(entry("CVE-2", "Oracle Database 19c", base.Add(time.Hour), false))
	s.Register(entry("CVE-3", "Oracle Database 19c", base.Add(2*time.Hour), true))

	if got := s.Count("Oracle Database 19c"); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	// Oldest (CVE-1) is gone; the survivors are exactly the two most recent.
	if !s.IsNew("Oracle Database 19c", "CVE-1") {
		t.Fatal("evicted entry should read as new again")
	}
	if s.IsNew("Oracle Database 19c", "CVE-2") || s.IsNew("Oracle Database 19c", "CVE-3") {
		t.Fatal("recent entries must survive the trim")
	}
}

func TestCapAppliesPerAssetFromConfig(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, Config{
		DefaultMax: 2,
		MaxTracked: map[string]int{"Juniper MX Series": 1},
	})
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	s.Register(entry("CVE-A", "Juniper MX Series", base, false))
	s.Register(entry("CVE-B", "Juniper MX Series", base.Add(time.Minute), false))
	if got := s.Count("Juniper MX Series"); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")
	cfg := Config{Path: path, DefaultMax: 5}
	base := time.Date(2025, 8, 20, 9, 30, 0, 0, time.UTC)

	s := openTestStore(t, cfg)
	s.Register(entry("CVE-2025-1000", "Ubuntu 22.04", base, true))
	s.Register(entry("CVE-2025-1001", "Ubuntu 22.04", base.Add(time.Hour), false))
	s.Register(entry("CVE-2025-1002", "Mozilla Firefox", base, false))
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded := openTestStore(t, cfg)
	if reloaded.IsNew("Ubuntu 22.04", "CVE-2025-1000") ||
		reloaded.IsNew("Ubuntu 22.04", "CVE-2025-1001") ||
		reloaded.IsNew("Mozilla Firefox", "CVE-2025-1002") {
		t.Fatal("persisted entries must survive a reload")
	}

	latest, ok := reloaded.Latest("Ubuntu 22.04")
	if !ok || latest.ID != "CVE-2025-1001" {
		t.Fatalf("Latest = (%+v, %v), want the newest entry", latest, ok)
	}
	if _, ok := reloaded.Latest("Juniper MX Series"); ok {
		t.Fatal("Latest for an unknown asset must report false")
	}

	crit := reloaded.Critical()
	if len(crit) != 1 || crit[0].ID != "CVE-2025-1000" || crit[0].Asset != "Ubuntu 22.04" {
		t.Fatalf("Critical() = %+v, want the one critical entry", crit)
	}
	if !crit[0].PublishedAt.Equal(base) {
		t.Fatalf("PublishedAt = %v, want %v", crit[0].PublishedAt, base)
	}
}

func TestPersistEmptyStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")
	cfg := Config{Path: path}

	s := openTestStore(t, cfg)
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist empty: %v", err)
	}
	reloaded := openTestStore(t, cfg)
	if !reloaded.IsNew("anything", "CVE-0") {
		t.Fatal("empty store must treat everything as new")
	}
}

func TestCorruptFileLoadsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")
	if err := os.WriteFile(path, []byte("{this is not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s := openTestStore(t, Config{Path: path, DefaultMax: 2})
	if !s.IsNew("Ubuntu 22.04", "CVE-2025-9999") {
		t.Fatal("corrupt file must yield an empty store")
	}

	// The store stays usable and the next persist repairs the file.
	s.Register(entry("CVE-2025-9999", "Ubuntu 22.04", time.Now().UTC(), false))
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist after corrupt load: %v", err)
	}
	reloaded := openTestStore(t, Config{Path: path, DefaultMax: 2})
	if reloaded.IsNew("Ubuntu 22.04", "CVE-2025-9999") {
		t.Fatal("repaired file must round-trip")
	}
}

func TestPersistIsAtomic(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")
	cfg := Config{Path: path, DefaultMax: 5}

	s := openTestStore(t, cfg)
	s.Register(entry("CVE-2025-7777", "Ubuntu 22.04", time.Now().UTC(), false))
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file must not survive a successful persist")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
