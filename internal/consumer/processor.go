// Package consumer reads workout events from Kafka and hands them to a
// Handler.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Reader exposes the subset of kafka.Reader the processor needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Message is a decoded record written by the outbox dispatcher.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Key       string
	EventType string
	DedupeKey string
	Payload   json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) {
		p.log = logger
	}
}

// Processor pulls messages from Kafka, decodes them and dispatches them to a
// Handler. A message is committed only after its handler succeeds.
type Processor struct {
	reader  Reader
	handler Handler
	log     zerolog.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		log:     log.Logger.With().Str("component", "consumer").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.log.Error().Err(err).Msg("fetch failed")
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.log.Warn().Err(decodeErr).
				Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).
				Msg("dropping undecodable message")
			recordRejected(decodeErr)
			// Poison messages are committed so they are not redelivered forever.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.log.Error().Err(commitErr).Msg("commit after decode failure")
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.log.Error().Err(handleErr).
				Str("event_type", event.EventType).Str("dedupe_key", event.DedupeKey).
				Msg("handler failed")
			recordFailed(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.log.Error().Err(commitErr).Msg("commit failed")
			continue
		}
		recordHandled(event, time.Now())
	}
}

var (
	errMissingEventType = errors.New("missing event_type header")
	errInvalidPayload   = errors.New("payload is not valid JSON")
)

func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, "event_type")
	if !ok || len(eventType) == 0 {
		return Message{}, errMissingEventType
	}
	if !json.Valid(msg.Value) {
		return Message{}, fmt.Errorf("%w: %d bytes", errInvalidPayload, len(msg.Value))
	}
	dedupeKey, ok := headerValue(msg, "dedupe_key")
	if !ok || len(dedupeKey) == 0 {
		dedupeKey = []byte(fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset))
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Key:       string(msg.Key),
		EventType: string(eventType),
		DedupeKey: string(dedupeKey),
		Payload:   json.RawMessage(append([]byte(nil), msg.Value...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
