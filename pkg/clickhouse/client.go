package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Options describes one ClickHouse endpoint. Zero values fall back to the
// defaults applied by NewClient.
type Options struct {
	Addr     string // host:port
	Database string
	User     string
	Password string

	// HTTP selects the HTTP interface instead of the native protocol.
	HTTP         bool
	AsyncInsert  bool
	WaitForAsync bool

	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	MaxExecutionTime time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (o Options) withDefaults() Options {
	if o.Database == "" {
		o.Database = "default"
	}
	if o.User == "" {
		o.User = "default"
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns <= 0 || o.MaxIdleConns > o.MaxOpenConns {
		o.MaxIdleConns = o.MaxOpenConns / 2
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 5 * time.Minute
	}
	return o
}

// Client owns a database/sql pool on the clickhouse-go driver.
type Client struct {
	db       *sql.DB
	database string
}

// NewClient opens the pool and pings the server.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("clickhouse: addr is required")
	}
	opts = opts.withDefaults()

	db, err := sql.Open("clickhouse", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", opts.Addr, err)
	}
	return &Client{db: db, database: opts.Database}, nil
}

// DB returns the pool for direct use.
func (c *Client) DB() *sql.DB { return c.db }

// Database is the configured database name.
func (c *Client) Database() string { return c.database }

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SampleSchema returns the DDL for the samples table. ReplacingMergeTree
// collapses redelivered rows with the same (asset, ts).
func SampleSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    asset  LowCardinality(String),
    ts     DateTime64(3, 'UTC'),
    price  Float64,
    volume Float64
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (asset, ts)`, database, table),
	}
}

// DSN renders the driver connection string. Settings the server applies
// per query travel as query parameters.
func (o Options) DSN() string {
	scheme := "clickhouse"
	if o.HTTP {
		scheme = "http"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(o.User, o.Password),
		Host:   o.Addr,
		Path:   "/" + strings.TrimPrefix(o.Database, "/"),
	}

	q := url.Values{}
	if o.DialTimeout > 0 {
		q.Set("dial_timeout", o.DialTimeout.String())
	}
	if o.ReadTimeout > 0 {
		q.Set("read_timeout", o.ReadTimeout.String())
	}
	if o.MaxExecutionTime > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(o.MaxExecutionTime.Seconds())))
	}
	if o.AsyncInsert {
		q.Set("async_insert", "1")
		if o.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
