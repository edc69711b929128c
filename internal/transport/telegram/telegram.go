// Package telegram adapts a Telegram chat to the transport.Channel
// capability set using telebot's long-poll client.
//
// The Bot API cannot read chat history, so the adapter keeps a bounded
// ledger of the messages it sent itself. That is sufficient for retention:
// the sweep may only ever delete the bot's own messages anyway.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"golang.org/x/time/rate"

	"cvewatch/internal/transport"
	logx "cvewatch/pkg/logx"
)

const defaultLedgerCap = 500

type Config struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration

	// RatePerSec paces outgoing sends to stay under Telegram's limits.
	RatePerSec int

	// LedgerCap bounds the sent-message ledger (and therefore how far back
	// History can see).
	LedgerCap int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	ledgerMu sync.Mutex
	ledger   []transport.Message // oldest first
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.LedgerCap <= 0 {
		cfg.LedgerCap = defaultLedgerCap
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Bot exposes the underlying telebot instance so the command router can
// register handlers on it.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// ChatID returns the configured announcement chat.
func (a *Adapter) ChatID() int64 { return a.cfg.ChatID }

// Start begins long-polling for operator commands. Safe to call once.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return
	}
	a.running = true

	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("telegram polling started", logx.Int64("chat_id", a.cfg.ChatID))
		a.bot.Start() // blocks until Stop
	}()
}

// Stop halts polling. Best-effort: shutdown never blocks on a pending
// long-poll for longer than the grace window.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("telegram polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) Send(ctx context.Context, text string) (transport.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	chat := &tele.Chat{ID: a.cfg.ChatID}
	msg, err := a.bot.Send(chat, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return transport.MessageRef{}, classify(err)
	}

	ref := transport.MessageRef{ChatID: a.cfg.ChatID, MessageID: msg.ID}
	a.record(transport.Message{Ref: ref, Self: true, Text: text, CreatedAt: msg.Time()})
	return ref, nil
}

func (a *Adapter) Edit(ctx context.Context, ref transport.MessageRef, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return classify(err)
	}
	a.ledgerMu.Lock()
	for i := range a.ledger {
		if a.ledger[i].Ref == ref {
			a.ledger[i].Text = text
			break
		}
	}
	a.ledgerMu.Unlock()
	return nil
}

func (a *Adapter) Delete(ctx context.Context, ref transport.MessageRef) error {
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if err := a.bot.Delete(m); err != nil {
		return classify(err)
	}
	a.forget(ref)
	return nil
}

func (a *Adapter) History(ctx context.Context, limit int) ([]transport.Message, error) {
	a.ledgerMu.Lock()
	defer a.ledgerMu.Unlock()

	n := len(a.ledger)
	if limit > 0 && limit < n {
		n = limit
	}
	// Most recent first.
	out := make([]transport.Message, 0, n)
	for i := len(a.ledger) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, a.ledger[i])
	}
	return out, nil
}

func (a *Adapter) record(m transport.Message) {
	a.ledgerMu.Lock()
	defer a.ledgerMu.Unlock()
	a.ledger = append(a.ledger, m)
	if over := len(a.ledger) - a.cfg.LedgerCap; over > 0 {
		a.ledger = append([]transport.Message(nil), a.ledger[over:]...)
	}
}

func (a *Adapter) forget(ref transport.MessageRef) {
	a.ledgerMu.Lock()
	defer a.ledgerMu.Unlock()
	for i := range a.ledger {
		if a.ledger[i].Ref == ref {
			a.ledger = append(a.ledger[:i], a.ledger[i+1:]...)
			return
		}
	}
}

// classify maps telebot errors onto the transport taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Description)
		switch {
		case apiErr.Code == 403:
			return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
		case apiErr.Code == 400 && strings.Contains(desc, "not found"):
			return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
		case apiErr.Code == 400 && strings.Contains(desc, "can't be deleted"):
			return fmt.Errorf("%w: %v", transport.ErrForbidden, err)
		}
	}
	return fmt.Errorf("%w: %v", transport.ErrTransient, err)
}
