package handler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

const (
	// MessageDeleteInterval is how long lobby messages stay in the chat.
	MessageDeleteInterval = 30 * time.Minute
	// MessageCleanPeriod is how often the cleaner looks for expired messages.
	MessageCleanPeriod = 5 * time.Minute
)

// TrackedMessage represents a message to be deleted later
type TrackedMessage struct {
	ChatID    int64
	MessageID int
	SentAt    time.Time
}

type deleter interface {
	Delete(msg tele.Editable) error
}

// MessageTracker remembers bot messages and deletes them once they expire.
type MessageTracker struct {
	mu       sync.Mutex
	messages []TrackedMessage
	maxAge   time.Duration
	now      func() time.Time
}

// NewMessageTracker creates a tracker deleting messages older than maxAge.
func NewMessageTracker(maxAge time.Duration) *MessageTracker {
	if maxAge <= 0 {
		maxAge = MessageDeleteInterval
	}
	return &MessageTracker{maxAge: maxAge, now: time.Now}
}

// Track adds a message to the tracking list. Nil messages are ignored.
func (t *MessageTracker) Track(msg *tele.Message) {
	if msg == nil || msg.Chat == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = append(t.messages, TrackedMessage{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		SentAt:    t.now(),
	})
}

// Len returns the number of messages waiting for deletion.
func (t *MessageTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Clean deletes expired messages and returns how many were removed from
// tracking. Failed deletions are dropped too; the message is usually gone.
func (t *MessageTracker) Clean(d deleter) int {
	t.mu.Lock()
	now := t.now()
	var expired, remaining []TrackedMessage
	for _, msg := range t.messages {
		if now.Sub(msg.SentAt) >= t.maxAge {
			expired = append(expired, msg)
		} else {
			remaining = append(remaining, msg)
		}
	}
	t.messages = remaining
	t.mu.Unlock()

	for _, msg := range expired {
		err := d.Delete(&tele.Message{
			ID:   msg.MessageID,
			Chat: &tele.Chat{ID: msg.ChatID},
		})
		if err != nil {
			log.Debug().Err(err).Int("msg_id", msg.MessageID).Msg("Failed to delete old message")
		}
	}
	return len(expired)
}

// Run cleans every period until ctx is done.
func (t *MessageTracker) Run(ctx context.Context, d deleter, period time.Duration) {
	if period <= 0 {
		period = MessageCleanPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Clean(d); n > 0 {
				log.Debug().Int("count", n).Msg("Old messages cleaned")
			}
		}
	}
}
