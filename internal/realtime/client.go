package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marklift/internal/logging"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
)

// Conn is the subset of a websocket connection the client needs. The gorilla
// *websocket.Conn satisfies it directly.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer opens realtime connections; swapped for a fake in tests.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type websocketDialer struct{}

func (websocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client multiplexes per-job subscriptions over one websocket connection.
type Client struct {
	url    string
	dialer Dialer
	logger *slog.Logger

	// writeMu serializes outbound control frames so a stalled write cannot
	// block the registry mutex and with it event dispatch.
	writeMu sync.Mutex

	mu     sync.Mutex
	conn   Conn
	subs   map[string]Handler
	opened bool
	closed bool
}

// NewClient constructs a realtime client for the given websocket URL.
func NewClient(url string, logger *slog.Logger) *Client {
	return NewClientWithDialer(url, websocketDialer{}, logger)
}

// NewClientWithDialer constructs a client with a custom dialer.
func NewClientWithDialer(url string, dialer Dialer, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		dialer: dialer,
		logger: logging.WithComponent(logger, "realtime"),
		subs:   make(map[string]Handler),
	}
}

// Open dials the channel and starts the read loop. The context bounds both
// the initial dial and any later reconnect attempts.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return errors.New("realtime client already open")
	}
	c.mu.Unlock()

	conn, err := c.dialer.DialContext(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial realtime channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.opened = true
	c.closed = false
	c.mu.Unlock()

	go c.readLoop(ctx)
	return nil
}

// Close tears down the connection and drops every subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.opened = false
	conn := c.conn
	c.conn = nil
	c.subs = make(map[string]Handler)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Subscribe registers a handler for a job's events and announces the
// subscription to the server. A job can hold at most one live subscription.
func (c *Client) Subscribe(jobID string, handler Handler) (*Subscription, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return nil, errors.New("realtime client is not open")
	}
	if _, exists := c.subs[jobID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("job %s already has an active subscription", jobID)
	}
	c.subs[jobID] = handler
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteJSON(controlFrame{Action: "subscribe", JobID: jobID})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.subs, jobID)
		c.mu.Unlock()
		return nil, fmt.Errorf("announce subscription for job %s: %w", jobID, err)
	}
	return &Subscription{client: c, jobID: jobID}, nil
}

// ActiveSubscriptions returns the number of jobs with live handlers.
func (c *Client) ActiveSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Client) unsubscribe(jobID string) {
	c.mu.Lock()
	_, exists := c.subs[jobID]
	delete(c.subs, jobID)
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if !exists || closed || conn == nil {
		return
	}
	// Best effort: the server also drops registrations on terminal events.
	c.writeMu.Lock()
	err := conn.WriteJSON(controlFrame{Action: "unsubscribe", JobID: jobID})
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Debug("unsubscribe frame failed", logging.FieldJobID, jobID, "error", err)
	}
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return
			}
			c.logger.Warn("realtime channel dropped", "error", err)
			if !c.reconnect(ctx) {
				return
			}
			continue
		}
		c.dispatch(event)
	}
}

func (c *Client) dispatch(event Event) {
	c.mu.Lock()
	handler := c.subs[event.JobID]
	c.mu.Unlock()
	if handler == nil {
		c.logger.Debug("event for unknown job", logging.FieldJobID, event.JobID, "type", string(event.Type))
		return
	}
	handler(event)
}

// reconnect redials with exponential backoff and re-announces every live
// subscription in bulk. Returns false when the client was closed or the
// context expired while retrying.
func (c *Client) reconnect(ctx context.Context) bool {
	delay := reconnectBaseDelay
	for {
		if ctx.Err() != nil || c.isClosed() {
			return false
		}

		conn, err := c.dialer.DialContext(ctx, c.url)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				_ = conn.Close()
				return false
			}
			c.conn = conn
			jobIDs := make([]string, 0, len(c.subs))
			for jobID := range c.subs {
				jobIDs = append(jobIDs, jobID)
			}
			c.mu.Unlock()

			c.writeMu.Lock()
			var writeErr error
			for _, jobID := range jobIDs {
				if writeErr = conn.WriteJSON(controlFrame{Action: "subscribe", JobID: jobID}); writeErr != nil {
					break
				}
			}
			c.writeMu.Unlock()

			if writeErr == nil {
				c.logger.Info("realtime channel reconnected", "resubscribed", len(jobIDs))
				return true
			}
			_ = conn.Close()
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay *= 2; delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscription is the cancellation handle returned by Subscribe.
type Subscription struct {
	client *Client
	jobID  string
	once   sync.Once
}

// JobID returns the job this subscription tracks.
func (s *Subscription) JobID() string {
	return s.jobID
}

// Close removes the handler and notifies the server. Safe to call more than
// once and after the client itself has closed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.client.unsubscribe(s.jobID)
	})
}
