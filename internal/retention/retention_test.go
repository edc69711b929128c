package retention

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cvewatch/internal/transport"
	logx "cvewatch/pkg/logx"
)

type fakeChannel struct {
	messages []transport.Message
	deleted  []transport.MessageRef
	failWith map[int]error // message id -> error returned by Delete
	failOnce map[int]bool  // fail only the first attempt
}

func (f *fakeChannel) Send(ctx context.Context, text string) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}

func (f *fakeChannel) Edit(ctx context.Context, ref transport.MessageRef, text string) error {
	return nil
}

func (f *fakeChannel) Delete(ctx context.Context, ref transport.MessageRef) error {
	if err, ok := f.failWith[ref.MessageID]; ok {
		if f.failOnce[ref.MessageID] {
			delete(f.failWith, ref.MessageID)
		}
		return err
	}
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeChannel) History(ctx context.Context, limit int) ([]transport.Message, error) {
	if limit > 0 && limit < len(f.messages) {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func msg(id int, self bool, text string, age time.Duration, now time.Time) transport.Message {
	return transport.Message{
		Ref:       transport.MessageRef{ChatID: 1, MessageID: id},
		Self:      self,
		Text:      text,
		CreatedAt: now.Add(-age),
	}
}

func newTestEngine(ch transport.Channel) *Engine {
	return NewEngine(Config{
		PreserveWindow: 20 * time.Minute,
		DeletesPerSec:  1000, // keep tests fast
		Marker:         "@everyone",
	}, ch, logx.Nop())
}

func TestSweepEligibility(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC)
	ch := &fakeChannel{messages: []transport.Message{
		msg(1, true, "old noise", 25*time.Minute, now),
		msg(2, true, "fresh noise", 10*time.Minute, now),
		msg(3, true, "@everyone\n┣ Ubuntu 22.04 ┩\nCVE-2025-1 (CRITICAL) / ...", 48*time.Hour, now),
		msg(4, false, "operator chatter from last week", 7*24*time.Hour, now),
	}}

	res, err := newTestEngine(ch).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Deleted != 1 || len(ch.deleted) != 1 {
		t.Fatalf("expected exactly one deletion, got %+v (deleted %v)", res, ch.deleted)
	}
	if ch.deleted[0].MessageID != 1 {
		t.Fatalf("deleted wrong message: %d", ch.deleted[0].MessageID)
	}
	if res.Skipped != 3 {
		t.Fatalf("Skipped = %d, want 3", res.Skipped)
	}
}

func TestSweepNeverDeletesBroadcastMarker(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	ch := &fakeChannel{messages: []transport.Message{
		msg(1, true, "@everyone ancient critical advisory", 365*24*time.Hour, now),
	}}

	res, err := newTestEngine(ch).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Deleted != 0 || len(ch.deleted) != 0 {
		t.Fatal("critical message was deleted")
	}
}

func TestSweepFailuresAreIsolated(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	ch := &fakeChannel{
		messages: []transport.Message{
			msg(1, true, "a", time.Hour, now),
			msg(2, true, "b", time.Hour, now),
			msg(3, true, "c", time.Hour, now),
		},
		failWith: map[int]error{
			1: fmt.Errorf("%w: not enough rights", transport.ErrForbidden),
			2: fmt.Errorf("%w: already gone", transport.ErrNotFound),
		},
	}

	res, err := newTestEngine(ch).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	// NotFound counts as deleted (target is gone), Forbidden as failed,
	// and the sweep continued through both.
	if res.Deleted != 2 || res.Failed != 1 {
		t.Fatalf("Result = %+v, want Deleted=2 Failed=1", res)
	}
	if len(ch.deleted) != 1 || ch.deleted[0].MessageID != 3 {
		t.Fatalf("expected message 3 actually deleted, got %v", ch.deleted)
	}
}

func TestSweepRetriesTransientOnce(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	ch := &fakeChannel{
		messages: []transport.Message{msg(1, true, "flaky", time.Hour, now)},
		failWith: map[int]error{1: fmt.Errorf("%w: 502", transport.ErrTransient)},
		failOnce: map[int]bool{1: true},
	}

	res, err := newTestEngine(ch).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Deleted != 1 || len(ch.deleted) != 1 {
		t.Fatalf("transient failure should be retried once then succeed: %+v", res)
	}
}

func TestSweepHonorsHistoryPage(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	ch := &fakeChannel{}
	for i := 1; i <= 50; i++ {
		ch.messages = append(ch.messages, msg(i, true, "noise", time.Hour, now))
	}

	e := NewEngine(Config{HistoryPage: 10, DeletesPerSec: 1000, Marker: "@everyone"}, ch, logx.Nop())
	res, err := e.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Scanned != 10 {
		t.Fatalf("Scanned = %d, want 10", res.Scanned)
	}
}
