package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
)

// BatchProducer is the subset of *pkgkafka.Producer the publishers need.
type BatchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher writes approved signals keyed by asset, so one
// asset's signals stay ordered within a partition.
type KafkaSignalPublisher struct {
	producer BatchProducer
	topic    string
}

func NewKafkaSignalPublisher(producer BatchProducer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignals(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = pkgkafka.Message{Key: []byte(s.AssetID), Value: s}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close leaves the shared producer open.
func (p *KafkaSignalPublisher) Close() error { return nil }

// KafkaContentPublisher hands accepted analysis text to the poster topic.
type KafkaContentPublisher struct {
	producer BatchProducer
	topic    string
}

func NewKafkaContentPublisher(producer BatchProducer, topic string) *KafkaContentPublisher {
	return &KafkaContentPublisher{producer: producer, topic: topic}
}

func (p *KafkaContentPublisher) Publish(ctx context.Context, rec models.PublishedContentRecord) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{Key: []byte(rec.ID), Value: rec}})
}

// NopSignalPublisher drops signals; used when Kafka is disabled.
type NopSignalPublisher struct{}

func (NopSignalPublisher) PublishSignals(context.Context, []models.Signal) error { return nil }
func (NopSignalPublisher) Close() error                                          { return nil }

// LogContentPublisher writes accepted text to the log when no poster topic exists.
type LogContentPublisher struct {
	log *applogger.Logger
}

func NewLogContentPublisher(log *applogger.Logger) *LogContentPublisher {
	if log == nil {
		log = applogger.Nop()
	}
	return &LogContentPublisher{log: log}
}

func (p *LogContentPublisher) Publish(_ context.Context, rec models.PublishedContentRecord) error {
	p.log.Info("analysis accepted",
		applogger.String("id", rec.ID),
		applogger.Strings("assets", rec.AssetIDs),
		applogger.String("text", rec.Text))
	return nil
}

var (
	_ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
	_ domrepo.SignalPublisher = NopSignalPublisher{}
	_ domsvc.ContentPublisher = (*KafkaContentPublisher)(nil)
	_ domsvc.ContentPublisher = (*LogContentPublisher)(nil)
	_ BatchProducer           = (*pkgkafka.Producer)(nil)
)
