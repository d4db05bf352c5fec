package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarketPulse/pkg/logger"

	"github.com/google/uuid"
)

// Queue runs registered jobs over a Backend with a fixed worker pool.
type Queue struct {
	logger  *logger.Logger
	config  Config
	backend Backend
	now     func() time.Time

	mu        sync.RWMutex
	jobs      map[string]Job
	isRunning bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(backend Backend, cfg Config, lgr *logger.Logger) *Queue {
	cfg.normalize()
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Queue{
		logger:  lgr,
		config:  cfg,
		backend: backend,
		now:     time.Now,
		jobs:    make(map[string]Job),
	}
}

// RegisterJob registers a job. Registering a second job for a type is ignored.
func (q *Queue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.Type()]; exists {
		q.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
	q.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start checks the backend and launches workers and the retry promoter.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return errors.New("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.backend.Ping(ctx); err != nil {
		return err
	}

	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.isRunning = true
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.retryProcessor()

	q.logger.Info("queue started",
		logger.String("backend", q.backend.Name()),
		logger.Int("workers", q.config.Workers))
	return nil
}

// Stop cancels in-flight work and waits for workers until ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		q.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.logger.Info("queue stopped")
		return nil
	}
}

// Enqueue encodes payload as JSON and pushes it.
func (q *Queue) Enqueue(ctx context.Context, msgType string, payload any) error {
	q.mu.RLock()
	running := q.isRunning
	_, known := q.jobs[msgType]
	q.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   body,
		Timestamp: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.backend.Push(ctx, data)
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	q.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for {
		if q.ctx.Err() != nil {
			q.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		}
		data, err := q.backend.Pop(q.ctx, q.config.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			q.logger.Error("pop message", logger.Error(err))
			select {
			case <-q.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if data == nil {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			q.logger.Error("unmarshal message", logger.Error(err))
			_ = q.backend.DeadLetter(context.Background(), data)
			continue
		}
		q.process(msg)
	}
}

func (q *Queue) process(msg Message) {
	q.mu.RLock()
	job, exists := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !exists {
		q.logger.Error("no job found",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		q.deadLetter(msg)
		return
	}

	start := time.Now()
	err := job.Handle(q.ctx, msg.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		q.logger.Warn("message cancelled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", time.Since(start)))
		return
	}
	q.handleProcessingError(msg, job, err)
}

func (q *Queue) handleProcessingError(msg Message, job Job, err error) {
	q.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= q.config.RetryLimit {
		q.logger.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		q.deadLetter(msg)
		return
	}

	msg.Attempts++
	retryAt := q.now().Add(q.config.RetryDelay)
	data, mErr := json.Marshal(msg)
	if mErr != nil {
		q.logger.Error("marshal retry", logger.Error(mErr))
		return
	}
	if sErr := q.backend.Schedule(context.Background(), data, retryAt); sErr != nil {
		q.logger.Error("schedule retry", logger.Error(sErr))
		return
	}
	q.logger.Info("scheduled retry",
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.Time("retry_at", retryAt))
}

func (q *Queue) deadLetter(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		q.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := q.backend.DeadLetter(context.Background(), data); err != nil {
		q.logger.Error("dead letter", logger.Error(err))
	}
}

func (q *Queue) retryProcessor() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.config.RetryTick)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.backend.Promote(q.ctx, q.now()); err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Error("promote retries", logger.Error(err))
			}
		}
	}
}

var _ Publisher = (*Queue)(nil)
