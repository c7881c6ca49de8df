package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"VerseRisk/internal/core"
)

// OutboundPublisher publishes processed events to NATS for downstream
// consumers, after persistence is confirmed.
// Subjects follow the pattern: verse.events.{event_type}[.{market_id}]
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	log       zerolog.Logger
}

// PublishableEvent is a processed event ready for outbound publishing.
type PublishableEvent struct {
	Sequence       int64       `json:"sequence"`
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	MarketID       *string     `json:"market_id,omitempty"`
	Payload        interface{} `json:"payload"`
	StateHash      []byte      `json:"state_hash"`
	Timestamp      time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers can query the event log directly.
				op.log.Warn().Err(err).Int64("sequence", evt.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("verse.events.%s", evt.EventType)
	if evt.MarketID != nil {
		subject = fmt.Sprintf("%s.%s", subject, *evt.MarketID)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VERSE_RISK_EVENTS",
		Subjects:  []string{"verse.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Info().Msg("ensured outbound stream VERSE_RISK_EVENTS")
	return nil
}

// NoticePublisher pushes liquidation queue admissions out to keeper bots on
// verse.liquidations.pending.{market}. Delivery is best effort; keepers that
// miss a notice still see the position through the queue query API.
type NoticePublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.LiquidationNotice
	log       zerolog.Logger
}

type liquidationNoticeJSON struct {
	PositionID  string `json:"position_id"`
	Market      string `json:"market"`
	Tier        string `json:"tier"`
	HealthRatio int64  `json:"health_ratio"`
	Slot        int64  `json:"slot"`
}

func NewNoticePublisher(js jetstream.JetStream, inputChan <-chan core.LiquidationNotice, log zerolog.Logger) *NoticePublisher {
	return &NoticePublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the notice publisher loop.
func (np *NoticePublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case notice, ok := <-np.inputChan:
			if !ok {
				return nil
			}

			data, err := json.Marshal(liquidationNoticeJSON{
				PositionID:  hex.EncodeToString(notice.PositionID[:]),
				Market:      notice.Market,
				Tier:        notice.Tier.String(),
				HealthRatio: notice.HealthRatio,
				Slot:        notice.Slot,
			})
			if err != nil {
				np.log.Warn().Err(err).Msg("marshal liquidation notice")
				continue
			}

			subject := fmt.Sprintf("verse.liquidations.pending.%s", notice.Market)
			if _, err := np.js.Publish(ctx, subject, data); err != nil {
				np.log.Warn().Err(err).Str("market", notice.Market).Msg("notice publish failed")
			}
		}
	}
}
