package seen

import (
	"errors"
	"time"
)

// Entry is the persisted projection of an announced advisory.
type Entry struct {
	ID          string    `json:"id"`
	Asset       string    `json:"-"`
	PublishedAt time.Time `json:"published_at"`
	Critical    bool      `json:"critical"`
}

// ErrCorruptState marks an unreadable state file. Loading still succeeds
// with an empty store; the error is only surfaced for logging.
var ErrCorruptState = errors.New("corrupt seen state")

// Config selects and parameterizes the persistence driver.
//
// Driver values:
//   - "file" (default): single JSON file, written atomically
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type Config struct {
	Driver string
	Path   string

	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout time.Duration

	// DefaultMax caps per-asset history when MaxTracked has no entry for the
	// asset.
	DefaultMax int

	// MaxTracked caps per-asset history, keyed by asset name.
	MaxTracked map[string]int
}

func (c Config) maxFor(asset string) int {
	if n, ok := c.MaxTracked[asset]; ok && n > 0 {
		return n
	}
	if c.DefaultMax > 0 {
		return c.DefaultMax
	}
	return 2
}

// Store is durable dedup state: which advisories were already announced,
// per asset, bounded to the most recent MaxTracked entries.
//
// Advisory IDs are globally unique: an ID registered under one asset is not
// new under any other. The store has exactly one writer (the tick loop), so
// implementations only need enough locking for that discipline.
type Store interface {
	// IsNew reports whether no entry with this ID exists under any asset.
	IsNew(asset, id string) bool

	// Register inserts the entry and enforces the per-asset cap, evicting the
	// oldest entries by publication time. Registering a known ID is a no-op
	// returning false.
	Register(e Entry) bool

	// Critical returns every retained entry flagged critical, newest first.
	Critical() []Entry

	// Latest returns the most recently published entry for the asset.
	Latest(asset string) (Entry, bool)

	// Count returns the number of retained entries for the asset.
	Count(asset string) int

	// Persist flushes in-memory state to durable storage. Drivers that are
	// durable per Register may treat this as a no-op.
	Persist() error

	Close() error
}
