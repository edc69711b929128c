// Package transport defines the notification channel capability set the
// monitor consumes. Adapters map a concrete chat platform onto it.
package transport

import (
	"context"
	"errors"
	"time"
)

// MaxMessageLen is Telegram's message size limit in characters. The
// composer emits per-asset blocks so a single send stays under it.
const MaxMessageLen = 4096

// Channel operation failures, matched with errors.Is.
var (
	// ErrForbidden: the platform rejected the operation for permission
	// reasons. Logged and skipped, never retried.
	ErrForbidden = errors.New("channel operation forbidden")

	// ErrNotFound: the target message no longer exists. Logged and skipped.
	ErrNotFound = errors.New("channel message not found")

	// ErrTransient: any other failure; retried once by callers that care.
	ErrTransient = errors.New("transient channel failure")
)

// MessageRef identifies one message in the channel.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.MessageID == 0 }

// Message is a read-only view of channel history. Lifecycle belongs to the
// platform; the retention engine only reads and requests deletion.
type Message struct {
	Ref       MessageRef
	Self      bool
	Text      string
	CreatedAt time.Time
}

// Channel is the capability set the monitor needs from a chat platform.
type Channel interface {
	// Send posts text and returns a reference to the new message.
	Send(ctx context.Context, text string) (MessageRef, error)

	// Edit replaces the text of an earlier message.
	Edit(ctx context.Context, ref MessageRef, text string) error

	// Delete removes a message. Fails with ErrForbidden, ErrNotFound or
	// ErrTransient.
	Delete(ctx context.Context, ref MessageRef) error

	// History returns up to limit recent messages, most recent first.
	History(ctx context.Context, limit int) ([]Message, error)
}
