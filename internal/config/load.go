package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Load reads and strictly decodes the config file. JSON and YAML are both
// accepted; YAML is coerced to JSON first so one strict decoder
// (DisallowUnknownFields) covers both formats.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	jb, err := coerceToJSON(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Reject trailing tokens (e.g. concatenated JSON documents).
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("invalid config: trailing data")
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields no default can repair.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required")
	}
	if len(c.Assets) == 0 {
		return errors.New("assets: at least one monitored asset is required")
	}
	names := make(map[string]bool, len(c.Assets))
	for i, a := range c.Assets {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("assets[%d].name is required", i)
		}
		if names[a.Name] {
			return fmt.Errorf("assets[%d]: duplicate asset name %q", i, a.Name)
		}
		names[a.Name] = true
		if strings.TrimSpace(a.CPE) == "" && strings.TrimSpace(a.Keywords) == "" {
			return fmt.Errorf("assets[%d] (%s): either cpe or keywords is required", i, a.Name)
		}
		if a.MaxTracked < 0 {
			return fmt.Errorf("assets[%d] (%s): max_tracked must be >= 0", i, a.Name)
		}
	}
	if c.Monitor.CriticalThreshold < 0 || c.Monitor.CriticalThreshold > 10 {
		return errors.New("monitor.critical_threshold must be within 0..10")
	}
	// Durations fail early rather than at service construction.
	for _, d := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"source.timeout", c.Source.Timeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"monitor.poll_interval", c.Monitor.PollInterval},
		{"monitor.sweep_interval", c.Monitor.SweepInterval},
		{"retention.preserve_window", c.Retention.PreserveWindow},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	return nil
}

// AssetNames returns asset names in configuration order, which is the
// processing and tie-break order everywhere else.
func (c *Config) AssetNames() []string {
	out := make([]string, 0, len(c.Assets))
	for _, a := range c.Assets {
		out = append(out, a.Name)
	}
	return out
}

// coerceToJSON converts YAML input to JSON bytes; JSON input passes through.
func coerceToJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	j, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
