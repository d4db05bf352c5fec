package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"MarketPulse/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// permanentError marks a handler failure that redelivery cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer skips retries and commits past the message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	StartOffset int64
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Registerer  prometheus.Registerer
	Logger      *logger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerStartOffset accepts "earliest" or "latest"; anything else keeps the default.
func WithConsumerStartOffset(reset string) ConsumerOption {
	return func(c *ConsumerConfig) {
		switch reset {
		case "earliest":
			c.StartOffset = kafka.FirstOffset
		case "latest":
			c.StartOffset = kafka.LastOffset
		}
	}
}

func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets a topic that receives messages which exhausted retries.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerRegisterer registers consumer metrics on reg. Nil disables them.
func WithConsumerRegisterer(reg prometheus.Registerer) ConsumerOption {
	return func(c *ConsumerConfig) { c.Registerer = reg }
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Consumer fans messages from per-topic readers out to a worker pool.
// Messages of one partition are handled one at a time.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	msgCh    chan *message
	stopCh   chan struct{}
	stopOnce sync.Once
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup
	dlq      *kafka.Writer
	hook     ConsumerHook
	metrics  *consumerMetrics

	locksMu sync.Mutex
	locks   map[partitionKey]*sync.Mutex
}

type partitionKey struct {
	topic     string
	partition int
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "marketpulse",
		StartOffset: kafka.FirstOffset,
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
		Logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger.With(logger.String("component", "kafka_consumer")),
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		msgCh:    make(chan *message, cfg.BufferSize),
		stopCh:   make(chan struct{}),
		hook:     NoopHook{},
		metrics:  newConsumerMetrics(cfg.Registerer),
		locks:    make(map[partitionKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler registers a handler for its topic. A second handler for
// the same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// SetHook installs lifecycle hooks. Must be called before Start.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and starts the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			StartOffset: c.cfg.StartOffset,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.readWG.Add(1)
		go c.read(topic, reader)
	}
	c.log.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop signals readers, drains queued messages and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		// readers must be gone before the queue is closed
		c.readWG.Wait()
		close(c.msgCh)
		stopErr = waitGroup(ctx, &c.workWG)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Error("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer", logger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) read(topic string, reader *kafka.Reader) {
	defer c.readWG.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
			case <-c.stopCh:
				return
			}
			continue
		}
		select {
		case c.msgCh <- &message{topic: topic, km: km}:
			c.metrics.queued(topic, len(c.msgCh), cap(c.msgCh))
		case <-c.stopCh:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.workWG.Done()
	for msg := range c.msgCh {
		handler, ok := c.handlers[msg.topic]
		if !ok {
			continue
		}
		c.process(handler, msg)
	}
}

func (c *Consumer) process(handler MessageHandler, msg *message) {
	start := time.Now()
	lock := c.partitionLock(msg.topic, msg.km.Partition)
	lock.Lock()
	defer lock.Unlock()

	err := c.handleWithRetry(handler, msg)
	outcome := "ok"
	switch {
	case err == nil:
	case IsPermanent(err):
		outcome = "permanent"
	default:
		outcome = "failed"
	}
	if err != nil {
		c.hook.OnError(context.Background(), msg.topic, msg.km, msg.km.Value, err)
		c.log.Error("message handling failed",
			logger.String("topic", msg.topic),
			logger.Int("partition", msg.km.Partition),
			logger.Int64("offset", msg.km.Offset),
			logger.String("outcome", outcome),
			logger.Error(err))
		c.deadLetter(msg, err)
	}

	// Transient failures without a DLQ stay uncommitted for redelivery.
	if err == nil || IsPermanent(err) || c.dlq != nil {
		if reader := c.readers[msg.topic]; reader != nil {
			_ = c.commitWithRetry(reader, msg.km, 3)
		}
	}
	c.metrics.handled(msg.topic, outcome, time.Since(start))
}

func (c *Consumer) handleWithRetry(handler MessageHandler, msg *message) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(handler, msg)
		if err == nil || IsPermanent(err) || attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopCh:
			return err
		}
	}
}

func (c *Consumer) handleOnce(handler MessageHandler, msg *message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	ctx, km, data, err := c.hook.BeforeHandle(context.Background(), msg.topic, msg.km, msg.km.Value)
	if err != nil {
		return err
	}
	err = handler.Handle(ctx, data)
	c.hook.AfterHandle(ctx, msg.topic, km, data, err)
	return err
}

func (c *Consumer) deadLetter(msg *message, cause error) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.km.Key,
		Value: msg.km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("write dlq", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
	}
}

// commitWithRetry commits a single message offset with bounded retries.
func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit offset", logger.Int("attempts", max), logger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := partitionKey{topic: topic, partition: partition}
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// backoffWithJitter doubles from min per attempt, capped at max, minus up to 50% jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

type consumerMetrics struct {
	queueDepth    *prometheus.GaugeVec
	queueFullness *prometheus.GaugeVec
	messages      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &consumerMetrics{
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketpulse_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker",
		}, []string{"topic"}),
		queueFullness: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketpulse_kafka_consumer_queue_fullness",
			Help: "Queue utilization ratio (len/cap)",
		}, []string{"topic"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_kafka_consumer_messages_total",
			Help: "Messages handled by outcome",
		}, []string{"topic", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketpulse_kafka_consumer_handle_seconds",
			Help:    "Handling time per message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *consumerMetrics) queued(topic string, depth, capacity int) {
	if m == nil || capacity == 0 {
		return
	}
	m.queueDepth.WithLabelValues(topic).Set(float64(depth))
	m.queueFullness.WithLabelValues(topic).Set(float64(depth) / float64(capacity))
}

func (m *consumerMetrics) handled(topic, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(topic, outcome).Inc()
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
