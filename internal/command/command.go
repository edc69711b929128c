// Package command maps Telegram operator commands onto the monitor's
// control hooks. Every command is owner-gated: updates from anyone outside
// the configured owner list are ignored without a reply, so the bot stays
// silent toward strangers in the announcement chat.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"cvewatch/internal/monitor"
	logx "cvewatch/pkg/logx"
)

// commandTimeout bounds a single operator command, including a forced tick
// with its fetch retries.
const commandTimeout = 2 * time.Minute

type Router struct {
	mon    *monitor.Monitor
	owners map[int64]struct{}
	log    logx.Logger
}

func NewRouter(mon *monitor.Monitor, owners []int64, log logx.Logger) *Router {
	set := make(map[int64]struct{}, len(owners))
	for _, id := range owners {
		set[id] = struct{}{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{mon: mon, owners: set, log: log}
}

// Register attaches all operator commands to the bot.
func (r *Router) Register(bot *tele.Bot) {
	bot.Handle("/pause", r.gate(r.handlePause))
	bot.Handle("/resume", r.gate(r.handleResume))
	bot.Handle("/check", r.gate(r.handleCheck))
	bot.Handle("/critical", r.gate(r.handleCritical))
	bot.Handle("/sweep", r.gate(r.handleSweep))
	bot.Handle("/uptime", r.gate(r.handleUptime))
	bot.Handle("/status", r.gate(r.handleStatus))
}

type handlerFunc func(ctx context.Context, c tele.Context) error

func (r *Router) gate(h handlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		if _, ok := r.owners[sender.ID]; !ok {
			r.log.Debug("command from non-owner ignored",
				logx.Int64("user_id", sender.ID),
				logx.String("command", c.Text()))
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := h(ctx, c); err != nil {
			r.log.Warn("command failed",
				logx.String("command", c.Text()), logx.Err(err))
			return c.Reply("Command failed: " + err.Error())
		}
		return nil
	}
}

func (r *Router) handlePause(_ context.Context, c tele.Context) error {
	if r.mon.Pause() {
		return c.Reply("Monitoring paused. Ticks are skipped until /resume.")
	}
	return c.Reply("Monitoring resumed.")
}

func (r *Router) handleResume(_ context.Context, c tele.Context) error {
	r.mon.Resume()
	return c.Reply("Monitoring resumed.")
}

func (r *Router) handleCheck(ctx context.Context, c tele.Context) error {
	if err := c.Reply("Running an advisory check now."); err != nil {
		return err
	}
	return r.mon.ForceTick(ctx)
}

func (r *Router) handleCritical(_ context.Context, c tele.Context) error {
	entries := r.mon.CriticalList()
	if len(entries) == 0 {
		return c.Reply("No critical advisories on record.")
	}
	var sb strings.Builder
	sb.WriteString("Tracked critical advisories:")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%s — %s (%s)",
			e.ID, e.Asset, e.PublishedAt.UTC().Format("2006-01-02"))
	}
	return c.Reply(sb.String())
}

func (r *Router) handleSweep(ctx context.Context, c tele.Context) error {
	if err := c.Reply("Running a retention sweep now."); err != nil {
		return err
	}
	r.mon.ForceSweep(ctx)
	return nil
}

func (r *Router) handleUptime(_ context.Context, c tele.Context) error {
	return c.Reply("Uptime: " + formatUptime(r.mon.Uptime()))
}

func (r *Router) handleStatus(_ context.Context, c tele.Context) error {
	snap := r.mon.Snapshot()
	var sb strings.Builder
	fmt.Fprintf(&sb, "State: %s\n", snap.State)
	fmt.Fprintf(&sb, "Paused: %v\n", snap.Paused)
	fmt.Fprintf(&sb, "Uptime: %s\n", formatUptime(snap.Uptime))
	fmt.Fprintf(&sb, "Ticks: %d (announced %d)\n", snap.Ticks, snap.Announced)
	if !snap.LastTick.IsZero() {
		fmt.Fprintf(&sb, "Last tick: %s\n", snap.LastTick.UTC().Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&sb, "Next sweep: %s", snap.NextSweep.UTC().Format("2006-01-02 15:04 UTC"))
	return c.Reply(sb.String())
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	s := d - m*time.Minute
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, h, m)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm %ds", m, s/time.Second)
}
