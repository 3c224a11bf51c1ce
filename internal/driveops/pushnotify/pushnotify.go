// Package pushnotify implements the server-push completion channel behind
// the sync.websocket configuration flag. A Client dials a subscription relay
// and records each operation's correlation id as done in a Cache as soon as
// the relay reports it, so asyncRuntime.Poll can check the cache before
// falling back to HTTP polling against the Graph API.
package pushnotify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// completionEvent is the wire shape the relay sends for each finished
// operation.
type completionEvent struct {
	CorrelationID string `json:"correlation_id"`
	Failed        bool   `json:"failed"`
}

// Cache records which correlation ids have been reported complete by the
// relay. Safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	done map[string]bool
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{done: make(map[string]bool)}
}

// MarkDone records that id has completed. failed indicates the operation
// itself failed; it is still "done" from the poller's point of view.
func (c *Cache) MarkDone(id string, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.done[id] = failed
}

// Check reports whether id has been marked done, and if so, whether the
// underlying operation had failed.
func (c *Cache) Check(id string) (done, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	failed, done = c.done[id]

	return done, failed
}

// Forget removes id from the cache. Callers do this once a poller has
// consumed the completion so the map does not grow unbounded.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.done, id)
}

// Client maintains a long-lived websocket connection to the push relay and
// feeds a Cache as completion events arrive.
type Client struct {
	conn   *websocket.Conn
	cache  *Cache
	logger *slog.Logger
}

// Dial opens a websocket connection to url and returns a Client ready to
// Run. The caller owns the returned Client's lifecycle and must Close it.
func Dial(ctx context.Context, url string, cache *Cache, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("pushnotify: dialing %s: %w", url, err)
	}

	return &Client{conn: conn, cache: cache, logger: logger}, nil
}

// Run reads completion events until ctx is canceled or the connection is
// closed by the peer. It is meant to run in its own goroutine.
func (c *Client) Run(ctx context.Context) error {
	for {
		var evt completionEvent

		if err := wsjson.Read(ctx, c.conn, &evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("pushnotify: reading event: %w", err)
		}

		if evt.CorrelationID == "" {
			c.logger.Warn("pushnotify: dropping event with empty correlation id")
			continue
		}

		c.cache.MarkDone(evt.CorrelationID, evt.Failed)

		c.logger.Debug("pushnotify: completion received",
			slog.String("correlation_id", evt.CorrelationID),
			slog.Bool("failed", evt.Failed),
		)
	}
}

// Close tears down the underlying connection with a normal closure code.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client shutting down")
}

// defaultDialTimeout bounds how long Dial itself may take if the caller's
// context carries no deadline.
const defaultDialTimeout = 10 * time.Second

// DialWithDefaultTimeout is a convenience wrapper that applies
// defaultDialTimeout when ctx has no deadline of its own.
func DialWithDefaultTimeout(ctx context.Context, url string, cache *Cache, logger *slog.Logger) (*Client, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	return Dial(ctx, url, cache, logger)
}
