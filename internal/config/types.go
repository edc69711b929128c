package config

// Config is the static configuration surface. It is loaded once at startup
// and never mutated; on-disk edits only take effect after a restart.
//
// All duration fields are Go duration strings (e.g. "20m", "6h20m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Source    SourceConfig    `json:"source,omitempty"`
	Storage   StorageConfig   `json:"storage,omitempty"`
	Monitor   MonitorConfig   `json:"monitor"`
	Retention RetentionConfig `json:"retention,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
	Debug     DebugConfig     `json:"debug,omitempty"`
	Assets    []AssetConfig   `json:"assets"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// ChatID is the announcement channel.
	ChatID int64 `json:"chat_id"`

	// OwnerUserIDs may run operator commands. Empty means nobody can.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	PollTimeout string `json:"poll_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SourceConfig points at the advisory catalog.
type SourceConfig struct {
	BaseURL  string `json:"base_url,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	Timeout  string `json:"timeout,omitempty"`

	// MaxAge drops advisories published longer ago than this.
	// Default three years; "-1s" or any negative disables the cutoff.
	MaxAge string `json:"max_age,omitempty"`
}

// StorageConfig selects the seen-state driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/seen.json" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type MonitorConfig struct {
	// PollInterval is the notification tick cadence. Default "60m".
	PollInterval string `json:"poll_interval,omitempty"`

	// SweepInterval is uptime between retention sweeps. Default "6h20m".
	SweepInterval string `json:"sweep_interval,omitempty"`

	// CriticalThreshold is the CVSS score at which an advisory is critical.
	// Default 9.0.
	CriticalThreshold float64 `json:"critical_threshold,omitempty"`

	// BroadcastMarker is the wide-mention token for critical batches.
	// Default "@everyone".
	BroadcastMarker string `json:"broadcast_marker,omitempty"`

	// MaxTrackedDefault caps per-asset seen history when an asset does not
	// set its own. Default 2.
	MaxTrackedDefault int `json:"max_tracked_default,omitempty"`
}

type RetentionConfig struct {
	// PreserveWindow: messages younger than this are never swept.
	// Default "20m"; low-traffic deployments typically set "1h" or "6h".
	PreserveWindow string `json:"preserve_window,omitempty"`

	HistoryPage   int `json:"history_page,omitempty"`
	DeletesPerSec int `json:"deletes_per_sec,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9402"
}

// DebugConfig controls the optional pprof endpoint. A non-loopback addr
// additionally requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token   string `json:"token,omitempty"`
}

type AssetConfig struct {
	Name       string `json:"name"`
	CPE        string `json:"cpe,omitempty"`
	Keywords   string `json:"keywords,omitempty"`
	MaxTracked int    `json:"max_tracked,omitempty"`
}
