package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
	closeTimeout   = 2 * time.Second

	// requestTimeout bounds each batch POST, in seconds.
	requestTimeout = 10

	// maxRetries caps how often a failed batch is resent. Readings are
	// already in SQLite, so a lost batch is only a gap in the mirror.
	maxRetries = 3

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client mirrors collected readings into an InfluxDB v2 bucket through the
// library's non-blocking, batching write API.
//
// All methods are safe for concurrent use. After Close every write is
// dropped.
type Client struct {
	client influxdb2.Client
	writer api.WriteAPI

	closed  atomic.Bool
	points  atomic.Uint64
	failed  atomic.Uint64
	done    chan struct{}
	mu      sync.RWMutex
	onError func(err error)
}

// Stats counts points handed to the write API and batches the server
// rejected.
type Stats struct {
	Points      uint64
	WriteErrors uint64
}

// Connect pings the server and prepares the write API for cfg.Org and
// cfg.Bucket. It returns ErrDisabled when the mirror is switched off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("%w: %s: server not ready", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
		done:   make(chan struct{}),
	}
	// Errors must be requested before the first write or they are only
	// logged by the library.
	go c.drainErrors(c.writer.Errors())
	return c, nil
}

// clientOptions maps the batch settings, falling back to defaults for
// unset or negative values.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush / time.Millisecond)).
		SetPrecision(time.Millisecond).
		SetHTTPRequestTimeout(requestTimeout).
		SetMaxRetries(maxRetries)
}

func (c *Client) drainErrors(errs <-chan error) {
	defer close(c.done)
	for err := range errs {
		c.failed.Add(1)
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError registers a callback for batches the server rejected.
// Writes are asynchronous, so this is the only place such failures show.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil || c.closed.Load() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb health check: server not ready")
	}
	return nil
}

// Flush sends buffered points now and waits for the batch.
func (c *Client) Flush() {
	if c == nil || c.writer == nil || c.closed.Load() {
		return
	}
	c.writer.Flush()
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	return Stats{Points: c.points.Load(), WriteErrors: c.failed.Load()}
}

// Close flushes pending points and releases the client. It is a no-op on a
// nil or already closed client, so callers can defer it unconditionally.
func (c *Client) Close() error {
	if c == nil || c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writer.Flush()
	c.client.Close()
	select {
	case <-c.done:
	case <-time.After(closeTimeout):
	}
	return nil
}
