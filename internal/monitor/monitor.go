// Package monitor drives the advisory watch loop.
//
// One tick walks the configured assets in order: fetch candidates from the
// catalog, classify severity, drop everything already announced, register
// the survivors, send the composed announcement, persist state, and sweep
// the channel when the retention cadence is due. Exactly one tick runs at a
// time; a pause flag short-circuits the next tick without side effects.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cvewatch/internal/advisory"
	"cvewatch/internal/compose"
	"cvewatch/internal/metrics"
	"cvewatch/internal/nvd"
	"cvewatch/internal/retention"
	"cvewatch/internal/seen"
	"cvewatch/internal/transport"
	logx "cvewatch/pkg/logx"
)

// State is the tick state machine position, exposed for status commands.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateClassifying
	StateDeduplicating
	StateNotifying
	StateSweeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateClassifying:
		return "classifying"
	case StateDeduplicating:
		return "deduplicating"
	case StateNotifying:
		return "notifying"
	case StateSweeping:
		return "sweeping"
	default:
		return "unknown"
	}
}

const (
	// Fetch retry policy per asset per tick.
	fetchAttempts = 3
	fetchDelay    = 5 * time.Second
)

// Source is the advisory catalog dependency.
type Source interface {
	Fetch(ctx context.Context, asset advisory.Asset) ([]advisory.Record, error)
}

// Sweeper is the retention dependency.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (retention.Result, error)
}

type Config struct {
	Assets        []advisory.Asset // fixed processing order
	PollInterval  time.Duration    // default 60m
	SweepInterval time.Duration    // default 6h20m, measured from uptime marker
}

// Monitor owns all mutable scheduling state: the pause flag, the uptime
// start, the sweep marker and the status-message reference. Configuration
// stays immutable beside it.
type Monitor struct {
	cfg        Config
	source     Source
	classifier advisory.Classifier
	store      seen.Store
	composer   compose.Composer
	channel    transport.Channel
	sweeper    Sweeper
	metrics    *metrics.Metrics
	log        logx.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	// tickMu guarantees a single active tick.
	tickMu sync.Mutex

	mu        sync.Mutex
	state     State
	paused    bool
	startedAt time.Time
	lastSweep time.Time // uptime marker, not wall-clock-of-day
	lastTick  time.Time
	ticks     int
	announced int
	statusRef transport.MessageRef
}

func New(
	cfg Config,
	source Source,
	classifier advisory.Classifier,
	store seen.Store,
	composer compose.Composer,
	channel transport.Channel,
	sweeper Sweeper,
	m *metrics.Metrics,
	log logx.Logger,
) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 6*time.Hour + 20*time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	now := time.Now
	return &Monitor{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		store:      store,
		composer:   composer,
		channel:    channel,
		sweeper:    sweeper,
		metrics:    m,
		log:        log,
		now:        now,
		sleep:      sleepCtx,
		startedAt:  now(),
		lastSweep:  now(),
	}
}

// Tick runs one full cycle. Overlapping calls are serialized; a pause takes
// effect here, at the start, never mid-tick.
func (m *Monitor) Tick(ctx context.Context) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if m.Paused() {
		m.log.Debug("tick skipped: paused")
		return nil
	}

	m.setState(StateFetching)
	defer m.setState(StateIdle)

	batch, registered := m.collect(ctx)

	m.setState(StateNotifying)
	if err := m.notify(ctx, batch); err != nil {
		m.log.Warn("announcement send failed", logx.Err(err))
	}

	if registered > 0 {
		if err := m.store.Persist(); err != nil {
			// In-memory state is kept; the next tick retries the flush.
			m.log.Error("seen state persist failed", logx.Err(err))
		}
	}

	m.setState(StateSweeping)
	m.sweepIfDue(ctx)

	now := m.now()
	m.mu.Lock()
	m.ticks++
	m.lastTick = now
	m.announced += len(batch.Items)
	m.mu.Unlock()
	m.metrics.TickCompleted(now)

	m.log.Info("tick complete",
		logx.Int("new", len(batch.Items)),
		logx.Int("registered", registered))
	return ctx.Err()
}

// collect fetches, classifies and deduplicates across all assets. Failures
// are isolated per asset: one unreachable catalog query never aborts the
// tick for the others.
func (m *Monitor) collect(ctx context.Context) (compose.Batch, int) {
	var batch compose.Batch
	registered := 0

	for _, asset := range m.cfg.Assets {
		records, err := m.fetchWithRetry(ctx, asset)
		if err != nil {
			m.metrics.FetchFailed(asset.Name)
			m.log.Warn("asset fetch abandoned this tick",
				logx.String("asset", asset.Name), logx.Err(err))
			continue
		}

		m.setState(StateClassifying)
		for i := range records {
			records[i] = m.classifier.Classify(records[i])
		}

		m.setState(StateDeduplicating)
		for _, rec := range records {
			if !m.store.IsNew(asset.Name, rec.ID) {
				continue
			}
			if !m.store.Register(seen.Entry{
				ID:          rec.ID,
				Asset:       asset.Name,
				PublishedAt: rec.PublishedAt,
				Critical:    rec.Critical,
			}) {
				continue
			}
			registered++
			batch.Items = append(batch.Items, rec)
			m.metrics.Announced(asset.Name, 1)
		}
		m.metrics.SetTracked(asset.Name, m.store.Count(asset.Name))
		m.setState(StateFetching)
	}
	return batch, registered
}

func (m *Monitor) fetchWithRetry(ctx context.Context, asset advisory.Asset) ([]advisory.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		records, err := m.source.Fetch(ctx, asset)
		if err == nil {
			return records, nil
		}
		lastErr = err
		if !errors.Is(err, nvd.ErrSourceUnavailable) {
			// Not a transient catalog problem; retrying won't help.
			return nil, err
		}
		m.log.Debug("catalog fetch failed",
			logx.String("asset", asset.Name),
			logx.Int("attempt", attempt),
			logx.Err(err))
		if attempt < fetchAttempts {
			if err := m.sleep(ctx, fetchDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// notify sends the composed blocks, or refreshes the neutral status message
// when the tick produced nothing. An empty tick still results in channel
// output so a silent pipeline is distinguishable from a quiet one.
func (m *Monitor) notify(ctx context.Context, batch compose.Batch) error {
	blocks := m.composer.Build(batch)
	if len(blocks) == 0 {
		return m.sendStatus(ctx)
	}

	var firstErr error
	for _, blk := range blocks {
		if _, err := m.channel.Send(ctx, m.composer.Prefix(blk)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.log.Warn("block send failed", logx.String("asset", blk.Asset), logx.Err(err))
		}
	}
	return firstErr
}

func (m *Monitor) sendStatus(ctx context.Context) error {
	text := m.statusText()

	m.mu.Lock()
	ref := m.statusRef
	m.mu.Unlock()

	if !ref.IsZero() {
		err := m.channel.Edit(ctx, ref, text)
		if err == nil {
			return nil
		}
		if !errors.Is(err, transport.ErrNotFound) {
			m.log.Debug("status edit failed, sending fresh", logx.Err(err))
		}
	}

	newRef, err := m.channel.Send(ctx, text)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.statusRef = newRef
	m.mu.Unlock()
	return nil
}

func (m *Monitor) statusText() string {
	var sb strings.Builder
	sb.WriteString("No new advisories this run.")
	for _, asset := range m.cfg.Assets {
		e, ok := m.store.Latest(asset.Name)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\n%s — last known %s (%s)",
			asset.Name, e.ID, e.PublishedAt.UTC().Format("2006-01-02"))
	}
	return sb.String()
}

// sweepIfDue runs retention when enough uptime has passed since the last
// sweep. The marker resets only after a sweep actually ran.
func (m *Monitor) sweepIfDue(ctx context.Context) {
	m.mu.Lock()
	due := m.now().Sub(m.lastSweep) >= m.cfg.SweepInterval
	m.mu.Unlock()
	if !due {
		return
	}
	m.runSweep(ctx)
}

func (m *Monitor) runSweep(ctx context.Context) {
	res, err := m.sweeper.Sweep(ctx, m.now())
	if err != nil {
		m.log.Warn("retention sweep failed", logx.Err(err))
		return
	}
	m.metrics.SweepDeleted(res.Deleted)

	m.mu.Lock()
	m.lastSweep = m.now()
	m.mu.Unlock()

	if res.Deleted > 0 {
		text := fmt.Sprintf("Cleanup done: removed %d aged non-critical messages.", res.Deleted)
		if _, err := m.channel.Send(ctx, text); err != nil {
			m.log.Debug("cleanup notice send failed", logx.Err(err))
		}
	}
}

// SweepCheck is the lightweight cadence probe, meant to run every minute.
// It only sweeps when the interval has elapsed, keeping cleanup cost
// decoupled from notification latency.
func (m *Monitor) SweepCheck(ctx context.Context) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.sweepIfDue(ctx)
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
