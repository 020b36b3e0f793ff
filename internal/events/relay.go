package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	relayPushTimeout  = 10 * time.Second
	relayMaxAttempts  = 3
	relayRetryBackoff = 500 * time.Millisecond
)

// messageReader is the subset of *kafka.Reader used by Relay.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink receives the raw JSON of one account event. *loki.Client implements it.
type Sink interface {
	Push(ctx context.Context, rawJSON []byte) error
}

// Relay consumes account events from Kafka and forwards them to a Sink.
// Offsets are committed only after the sink accepted the message or the
// message was given up on after relayMaxAttempts pushes.
type Relay struct {
	reader  messageReader
	sink    Sink
	log     *slog.Logger
	backoff time.Duration
}

// NewKafkaRelay returns a Relay reading topic as consumer group groupID.
// Call Close when done.
func NewKafkaRelay(brokers []string, topic, groupID string, sink Sink, log *slog.Logger) *Relay {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	return newRelay(reader, sink, log)
}

func newRelay(reader messageReader, sink Sink, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Relay{reader: reader, sink: sink, log: log, backoff: relayRetryBackoff}
}

// Run fetches and forwards messages until ctx is cancelled. It returns nil
// on cancellation and the error otherwise.
func (r *Relay) Run(ctx context.Context) error {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			r.log.Warn("relay: kafka fetch failed", "error", err)
			if !sleepCtx(ctx, r.backoff) {
				return nil
			}
			continue
		}
		if !r.forward(ctx, msg) {
			return nil
		}
		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("relay: commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// forward pushes msg with retries. It reports false if ctx ended first.
func (r *Relay) forward(ctx context.Context, msg kafka.Message) bool {
	var err error
	for attempt := 1; attempt <= relayMaxAttempts; attempt++ {
		pushCtx, cancel := context.WithTimeout(ctx, relayPushTimeout)
		err = r.sink.Push(pushCtx, msg.Value)
		cancel()
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		r.log.Warn("relay: push failed", "attempt", attempt, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		if attempt < relayMaxAttempts && !sleepCtx(ctx, r.backoff*time.Duration(attempt)) {
			return false
		}
	}
	r.log.Error("relay: dropping event after retries", "partition", msg.Partition, "offset", msg.Offset, "error", err)
	return true
}

// Close closes the underlying reader.
func (r *Relay) Close() error {
	return r.reader.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
