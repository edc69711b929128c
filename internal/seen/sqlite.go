//go:build sqlite
// +build sqlite

package seen

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "cvewatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore is durable per Register; Persist is a no-op.
type sqliteStore struct {
	cfg Config
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("seen store path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers; the tick loop is
	// the only one anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(string(b)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{cfg: cfg, db: db, log: log}, nil
}

func (s *sqliteStore) IsNew(asset, id string) bool {
	_ = asset
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM seen WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return true
	}
	if err != nil {
		s.log.Warn("seen lookup failed", logx.String("id", id), logx.Err(err))
		return false // fail closed: never double-announce on a flaky disk
	}
	return false
}

func (s *sqliteStore) Register(e Entry) bool {
	if e.ID == "" || e.Asset == "" {
		return false
	}
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO seen(id, asset, published_at, critical) VALUES(?,?,?,?)`,
		e.ID, e.Asset, e.PublishedAt.UTC().Format(time.RFC3339Nano), boolInt(e.Critical),
	)
	if err != nil {
		s.log.Warn("seen register failed", logx.String("id", e.ID), logx.Err(err))
		return false
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false
	}

	_, err = s.db.Exec(
		`DELETE FROM seen WHERE asset = ? AND id NOT IN (
			SELECT id FROM seen WHERE asset = ? ORDER BY published_at DESC LIMIT ?
		)`,
		e.Asset, e.Asset, s.cfg.maxFor(e.Asset),
	)
	if err != nil {
		s.log.Warn("seen trim failed", logx.String("asset", e.Asset), logx.Err(err))
	}
	return true
}

func (s *sqliteStore) Critical() []Entry {
	rows, err := s.db.Query(
		`SELECT id, asset, published_at, critical FROM seen WHERE critical = 1 ORDER BY published_at DESC`)
	if err != nil {
		s.log.Warn("seen critical query failed", logx.Err(err))
		return nil
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var published string
		var critical int
		if err := rows.Scan(&e.ID, &e.Asset, &published, &critical); err != nil {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, published); err == nil {
			e.PublishedAt = t
		}
		e.Critical = critical != 0
		out = append(out, e)
	}
	return out
}

func (s *sqliteStore) Latest(asset string) (Entry, bool) {
	var e Entry
	var published string
	var critical int
	err := s.db.QueryRow(
		`SELECT id, asset, published_at, critical FROM seen WHERE asset = ? ORDER BY published_at DESC LIMIT 1`,
		asset,
	).Scan(&e.ID, &e.Asset, &published, &critical)
	if err != nil {
		return Entry{}, false
	}
	if t, perr := time.Parse(time.RFC3339Nano, published); perr == nil {
		e.PublishedAt = t
	}
	e.Critical = critical != 0
	return e, true
}

func (s *sqliteStore) Count(asset string) int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM seen WHERE asset = ?`, asset).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *sqliteStore) Persist() error { return nil }

func (s *sqliteStore) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
