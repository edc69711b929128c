// Package retention bounds the channel's visible history.
//
// A sweep deletes aged, non-critical messages the bot wrote itself. Anything
// carrying the broadcast marker is preserved forever: an unacknowledged
// critical advisory must never scroll away because of cleanup.
package retention

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cvewatch/internal/transport"
	logx "cvewatch/pkg/logx"
)

const (
	// DefaultPreserveWindow keeps recent chatter around. Lower-traffic
	// deployments raise it (1h, 6h) through config; it is one value, not a
	// second code path.
	DefaultPreserveWindow = 20 * time.Minute

	// DefaultHistoryPage bounds how much history one sweep inspects.
	// Unbounded scans are out of scope for cost reasons.
	DefaultHistoryPage = 200

	// DefaultDeletesPerSec paces deletion requests under the platform's
	// rate limits.
	DefaultDeletesPerSec = 2
)

type Config struct {
	PreserveWindow time.Duration
	HistoryPage    int
	DeletesPerSec  int

	// Marker is the broadcast token that exempts a message from deletion.
	Marker string
}

// Result summarizes one sweep.
type Result struct {
	Scanned int
	Deleted int
	Skipped int
	Failed  int
}

type Engine struct {
	cfg     Config
	channel transport.Channel
	limiter *rate.Limiter
	log     logx.Logger
}

func NewEngine(cfg Config, channel transport.Channel, log logx.Logger) *Engine {
	if cfg.PreserveWindow <= 0 {
		cfg.PreserveWindow = DefaultPreserveWindow
	}
	if cfg.HistoryPage <= 0 {
		cfg.HistoryPage = DefaultHistoryPage
	}
	if cfg.DeletesPerSec <= 0 {
		cfg.DeletesPerSec = DefaultDeletesPerSec
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:     cfg,
		channel: channel,
		limiter: rate.NewLimiter(rate.Limit(cfg.DeletesPerSec), 1),
		log:     log,
	}
}

// Sweep scans the most recent history page and deletes eligible messages.
// A single deletion failure never aborts the sweep.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (Result, error) {
	var res Result

	history, err := e.channel.History(ctx, e.cfg.HistoryPage)
	if err != nil {
		return res, err
	}
	res.Scanned = len(history)

	for _, msg := range history {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !e.eligible(msg, now) {
			res.Skipped++
			continue
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return res, err
		}
		if e.delete(ctx, msg.Ref) {
			res.Deleted++
		} else {
			res.Failed++
		}
	}

	e.log.Info("retention sweep done",
		logx.Int("scanned", res.Scanned),
		logx.Int("deleted", res.Deleted),
		logx.Int("failed", res.Failed))
	return res, nil
}

// eligible: self-authored AND not marked critical AND older than the
// preserve window.
func (e *Engine) eligible(msg transport.Message, now time.Time) bool {
	if !msg.Self {
		return false
	}
	if e.cfg.Marker != "" && strings.Contains(msg.Text, e.cfg.Marker) {
		return false
	}
	return now.Sub(msg.CreatedAt) > e.cfg.PreserveWindow
}

// delete issues one deletion, retrying a transient failure once.
// Forbidden and NotFound are logged and skipped.
func (e *Engine) delete(ctx context.Context, ref transport.MessageRef) bool {
	err := e.channel.Delete(ctx, ref)
	if errors.Is(err, transport.ErrTransient) {
		err = e.channel.Delete(ctx, ref)
	}
	switch {
	case err == nil:
		return true
	case errors.Is(err, transport.ErrNotFound):
		// Already gone; close enough to deleted.
		e.log.Debug("message already gone", logx.Int("message_id", ref.MessageID))
		return true
	case errors.Is(err, transport.ErrForbidden):
		e.log.Warn("no permission to delete message", logx.Int("message_id", ref.MessageID))
		return false
	default:
		e.log.Warn("message delete failed", logx.Int("message_id", ref.MessageID), logx.Err(err))
		return false
	}
}
