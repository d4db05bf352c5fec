package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/queue"
)

// ContentJobType is the queue message type carrying one signal to write about.
const ContentJobType = "content.publish"

// ContentJob runs AnalysisPublisher.Publish for queued signals.
type ContentJob struct {
	publisher *AnalysisPublisher
	log       *applogger.Logger
}

func NewContentJob(publisher *AnalysisPublisher, log *applogger.Logger) *ContentJob {
	if log == nil {
		log = applogger.Nop()
	}
	return &ContentJob{publisher: publisher, log: log}
}

func (j *ContentJob) Name() string { return "content_publisher" }
func (j *ContentJob) Type() string { return ContentJobType }

// Handle decodes the signal and publishes it. Running out of attempts is a
// final outcome and is not retried; generator and publisher failures are.
func (j *ContentJob) Handle(ctx context.Context, payload json.RawMessage) error {
	sig, err := queue.Decode[models.Signal](payload)
	if err != nil {
		j.log.Error("drop content job", applogger.Error(err))
		return nil
	}
	_, err = j.publisher.Publish(ctx, *sig)
	if errors.Is(err, ErrNoAcceptableContent) {
		j.log.Warn("analysis not published", applogger.String("signal", sig.Key().String()), applogger.Error(err))
		return nil
	}
	return err
}

// ContentDispatcher enqueues the top approved signal of every asset so
// that cycles do not wait on text generation.
type ContentDispatcher struct {
	queue   queue.Publisher
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewContentDispatcher(q queue.Publisher, metrics domrepo.Metrics, log *applogger.Logger) *ContentDispatcher {
	if log == nil {
		log = applogger.Nop()
	}
	return &ContentDispatcher{queue: q, metrics: nopIfNil(metrics), log: log}
}

// HandleReport has the ReportHandler signature.
func (d *ContentDispatcher) HandleReport(ctx context.Context, report *models.CycleReport) {
	if report == nil {
		return
	}
	for _, asset := range sortedAssets(report) {
		top, ok := report.Assets[asset].Top()
		if !ok {
			continue
		}
		if err := d.queue.Enqueue(ctx, ContentJobType, top); err != nil {
			d.metrics.RecordError("content_enqueue")
			d.log.Warn("enqueue content job", applogger.String("asset", asset), applogger.Error(err))
		}
	}
}

var _ queue.Job = (*ContentJob)(nil)
