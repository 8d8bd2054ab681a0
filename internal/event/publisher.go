package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// 通知はこのコアの仕事ではない。外の通知ワーカーが拾えるように
// イベントだけ流す（届かなくても業務処理は失敗させない）。
const (
	EventPaymentVerified = "PaymentVerified"
	EventPaymentRejected = "PaymentRejected"
	EventOrderCancelled  = "OrderCancelled"
	EventImageApproved   = "ImageApproved"
	EventImageRejected   = "ImageRejected"
)

type Publisher interface {
	Publish(ctx context.Context, eventType string, key string, payload interface{})
}

type KafkaPublisher struct {
	w   *kafka.Writer
	log *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		log: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, key string, payload interface{}) {
	value, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("event marshal failed", zap.String("event", eventType), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	// 通知はベストエフォート。失敗はログだけ残す。
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Error("event publish failed", zap.String("event", eventType), zap.String("key", key), zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// ブローカー未設定のときの実装
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, eventType string, key string, payload interface{}) {
}
