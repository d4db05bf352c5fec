package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	domrepo "MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
)

const (
	headerContentType = "content-type"
	headerSource      = "source"
)

type handleStartKey struct{}

// NewSampleConsumerHook guards and observes sample consumption. Payloads a
// producer declared as anything other than JSON are rejected as permanent
// before decoding. Handling time is recorded per topic, and failed messages
// are logged with their position and producing source.
func NewSampleConsumerHook(metrics domrepo.Metrics, log *applogger.Logger) pkgkafka.ConsumerHook {
	metrics = nopIfNil(metrics)
	if log == nil {
		log = applogger.Nop()
	}

	contentType := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km kafkago.Message, data []byte) (context.Context, kafkago.Message, []byte, error) {
			ct := pkgkafka.HeaderValue(km, headerContentType)
			if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
				metrics.RecordError("consumer_content_type")
				return ctx, km, data, pkgkafka.Permanent(fmt.Errorf("%s: unsupported content type %q", topic, ct))
			}
			return ctx, km, data, nil
		},
	}

	timing := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafkago.Message, data []byte) (context.Context, kafkago.Message, []byte, error) {
			return context.WithValue(ctx, handleStartKey{}, time.Now()), km, data, nil
		},
		After: func(ctx context.Context, topic string, _ kafkago.Message, _ []byte, _ error) {
			if start, ok := ctx.Value(handleStartKey{}).(time.Time); ok {
				metrics.RecordLatency("consume_"+topic, time.Since(start).Seconds())
			}
		},
	}

	failures := pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafkago.Message, data []byte, err error) {
			log.Debug("sample message rejected",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.String("source", pkgkafka.HeaderValue(km, headerSource)),
				applogger.Int("bytes", len(data)),
				applogger.Error(err))
		},
	}

	return pkgkafka.NewHookChain(contentType, timing, failures)
}
