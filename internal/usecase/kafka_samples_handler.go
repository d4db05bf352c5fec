package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
	"MarketPulse/pkg/util"
)

// KafkaSamplesHandler consumes sample messages and feeds the ingestor.
type KafkaSamplesHandler struct {
	topic    string
	ingestor *SampleIngestor
	metrics  domrepo.Metrics
}

func NewKafkaSamplesHandler(topic string, ingestor *SampleIngestor, metrics domrepo.Metrics) *KafkaSamplesHandler {
	return &KafkaSamplesHandler{topic: topic, ingestor: ingestor, metrics: nopIfNil(metrics)}
}

func (h *KafkaSamplesHandler) Topic() string { return h.topic }

// Handle decodes one models.SampleFrame.
func (h *KafkaSamplesHandler) Handle(ctx context.Context, b []byte) error {
	var m models.SampleFrame
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(err)
	}

	ts := util.UnixAuto(m.T)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())

	err := h.ingestor.Ingest(ctx, models.Sample{
		AssetID:   m.Asset,
		Timestamp: ts,
		Price:     m.P,
		Volume:    m.V,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrOutOfOrderSample), errors.Is(err, models.ErrInvalidSample):
		// redelivery cannot fix these
		return pkgkafka.Permanent(err)
	default:
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaSamplesHandler)(nil)
