package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"telegram-casino-bot/internal/lobby"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a writer that keeps every session on one partition.
func NewKafkaWriter(brokers []string, topic string, writeTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher streams lobby events keyed by session id.
type KafkaPublisher struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafkaPublisher wraps w. timeout bounds each publish.
func NewKafkaPublisher(w messageWriter, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{w: w, timeout: timeout}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.SessionID),
		Value: payload,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// OnPhaseChange implements lobby.PhaseListener.
func (p *KafkaPublisher) OnPhaseChange(ctx context.Context, change lobby.PhaseChange) {
	if err := p.Publish(ctx, PhaseEvent(change)); err != nil {
		log.Warn().Err(err).
			Str("session_id", change.SessionID).
			Str("phase", string(change.Next)).
			Msg("Failed to publish phase change")
	}
}

// OnParticipantJoined implements lobby.ParticipantListener.
func (p *KafkaPublisher) OnParticipantJoined(ctx context.Context, view lobby.SessionView, stake lobby.Stake) {
	if err := p.Publish(ctx, JoinEvent(view, stake)); err != nil {
		log.Warn().Err(err).
			Str("session_id", view.ID).
			Int64("participant_id", stake.ParticipantID).
			Msg("Failed to publish join")
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
