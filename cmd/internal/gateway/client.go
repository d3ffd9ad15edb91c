package gateway

import (
	"sync"
	"sync/atomic"
	"time"
)

// Client carries one connection's outbound queue and liveness timestamp.
//
// Design notes:
// - Send is intentionally NOT closed by the server; done signals the
//   connection goroutines to stop.
// - Close is idempotent.
// - The liveness timestamp is only ever advanced by the transport layer
//   (acknowledged pings); the session core never touches it.
type Client struct {
	ID   string
	Send chan []byte

	lastLiveness atomic.Int64 // unix nanos

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue. The liveness
// timestamp starts at connection establishment.
func NewClient(id string, sendQueueSize int, now time.Time) *Client {
	if sendQueueSize < minSendQueueSize {
		sendQueueSize = defaultSendQueueSize
	}

	c := &Client{
		ID:   id,
		Send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	c.lastLiveness.Store(now.UnixNano())
	return c
}

// TouchLiveness records an acknowledged liveness probe.
func (c *Client) TouchLiveness(now time.Time) {
	c.lastLiveness.Store(now.UnixNano())
}

// LastLiveness returns the instant of the last acknowledged probe.
func (c *Client) LastLiveness() time.Time {
	return time.Unix(0, c.lastLiveness.Load())
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the connection goroutines to stop (idempotent).
// It does NOT close Send.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
