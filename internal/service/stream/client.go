package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
	appmetrics "MarketPulse/pkg/metrics"
	"MarketPulse/pkg/util"

	"github.com/gorilla/websocket"
)

// Ingestor receives decoded samples.
type Ingestor interface {
	Ingest(ctx context.Context, s models.Sample) error
}

// Config describes the feed endpoint.
type Config struct {
	URL            string
	Assets         []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

type subscribeMessage struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets"`
}

type envelope struct {
	Type string               `json:"type"`
	Data []models.SampleFrame `json:"data"`
}

// Client reads parsed samples from a WebSocket feed and reconnects until
// its context is cancelled.
type Client struct {
	cfg      Config
	dialer   *websocket.Dialer
	ingestor Ingestor
	metrics  domrepo.Metrics
	log      *applogger.Logger

	connected atomic.Bool
	sessions  atomic.Int64
}

func New(cfg Config, ingestor Ingestor, metrics domrepo.Metrics, log *applogger.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if log == nil {
		log = applogger.Nop()
	}
	if metrics == nil {
		metrics = appmetrics.Nop{}
	}
	return &Client{
		cfg:      cfg,
		dialer:   websocket.DefaultDialer,
		ingestor: ingestor,
		metrics:  metrics,
		log:      log,
	}
}

// Run blocks until ctx is done. A dropped connection is retried after
// the reconnect delay.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.RecordError("stream_disconnect")
		c.log.Warn("stream disconnected",
			applogger.String("url", c.cfg.URL),
			applogger.Error(err),
			applogger.Duration("retry_in_ms", c.cfg.ReconnectDelay))

		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// IsConnected reports whether a session is currently open.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Sessions counts connections established so far.
func (c *Client) Sessions() int64 { return c.sessions.Load() }

func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return fn()
	}

	if err := write(func() error {
		return conn.WriteJSON(subscribeMessage{Type: "subscribe", Assets: c.cfg.Assets})
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.sessions.Add(1)
	c.connected.Store(true)
	defer c.connected.Store(false)
	c.log.Info("stream connected", applogger.String("url", c.cfg.URL), applogger.Strings("assets", c.cfg.Assets))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessCtx.Done():
				// unblocks ReadMessage
				_ = write(func() error {
					return conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				})
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := write(func() error {
					return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PingInterval))
				}); err != nil {
					c.log.Debug("stream ping", applogger.Error(err))
				}
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}
		c.handleFrame(sessCtx, b)
	}
}

func (c *Client) handleFrame(ctx context.Context, b []byte) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		c.metrics.RecordError("stream_unmarshal")
		return
	}
	if env.Type != "samples" {
		return
	}
	for _, f := range env.Data {
		err := c.ingestor.Ingest(ctx, models.Sample{
			AssetID:   f.Asset,
			Timestamp: util.UnixAuto(f.T),
			Price:     f.P,
			Volume:    f.V,
		})
		if err != nil && !errors.Is(err, models.ErrOutOfOrderSample) {
			c.log.Debug("stream sample rejected", applogger.String("asset", f.Asset), applogger.Error(err))
		}
	}
}
