package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/communityconnect/server/config"
)

// Moderation actions carried by ModerationEvent.Action.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionArchive = "archive"
	ActionUnflag  = "unflag"
	ActionRemove  = "remove"
	ActionRole    = "role"
)

// ModerationEvent records one admin decision.
type ModerationEvent struct {
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   uint      `json:"target_id"`
	OwnerID    uint      `json:"owner_id,omitempty"`
	ActorID    uint      `json:"actor_id"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// EventPublisher ships moderation events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev ModerationEvent) error
	Close() error
}

type kafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher writes JSON events to topic. Writes are batched and async;
// delivery failures are logged from the completion callback.
func NewKafkaPublisher(brokers []string, topic string) EventPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				Logger.Warn("moderation event delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return &kafkaPublisher{w: w}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev ModerationEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%d", ev.TargetType, ev.TargetID)),
		Value: b,
		Time:  ev.At,
	})
}

func (p *kafkaPublisher) Close() error { return p.w.Close() }

// logPublisher is used when no brokers are configured.
type logPublisher struct{}

func (logPublisher) Publish(_ context.Context, ev ModerationEvent) error {
	Logger.Info("moderation",
		zap.String("action", ev.Action),
		zap.String("target_type", ev.TargetType),
		zap.Uint("target_id", ev.TargetID),
		zap.Uint("actor_id", ev.ActorID),
		zap.String("reason", ev.Reason),
	)
	return nil
}

func (logPublisher) Close() error { return nil }

var (
	publisher   EventPublisher = logPublisher{}
	publisherMu sync.RWMutex
)

// InitEventPublisher selects kafka when brokers are configured, otherwise the log publisher.
func InitEventPublisher(cfg config.AppConfig) EventPublisher {
	var p EventPublisher = logPublisher{}
	brokers := make([]string, 0, len(cfg.KafkaBrokers))
	for _, b := range cfg.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) > 0 {
		p = NewKafkaPublisher(brokers, cfg.KafkaModerationTopic)
		Logger.Info("kafka moderation publisher enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaModerationTopic))
	}
	SetEventPublisher(p)
	return p
}

// SetEventPublisher replaces the process wide publisher. Passing nil restores the log publisher.
func SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = logPublisher{}
	}
	publisherMu.Lock()
	publisher = p
	publisherMu.Unlock()
}

// PublishModeration sends ev and logs failures; moderation never fails because of it.
func PublishModeration(ctx context.Context, ev ModerationEvent) {
	publisherMu.RLock()
	p := publisher
	publisherMu.RUnlock()
	if err := p.Publish(ctx, ev); err != nil {
		Logger.Warn("publish moderation event failed", zap.String("action", ev.Action), zap.Error(err))
	}
}
