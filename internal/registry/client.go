package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
)

// Client is the registry's handle on one websocket connection: the bound
// user identity plus a buffered outbound queue drained by the transport's
// write loop. Fan-out never blocks on a slow consumer; a full queue drops
// the event and the client resyncs on its next full-snapshot refresh.
type Client struct {
	ID   string
	User domain.Player

	out  chan any
	done chan struct{}
	once sync.Once
}

func NewClient(user domain.Player, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Client{
		ID:   uuid.NewString(),
		User: user,
		out:  make(chan any, queueSize),
		done: make(chan struct{}),
	}
}

// Enqueue offers a payload to the outbound queue. Returns false when the
// client is closed or the queue is full.
func (c *Client) Enqueue(payload any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- payload:
		return true
	default:
		return false
	}
}

// Outbound is consumed by the transport write loop.
func (c *Client) Outbound() <-chan any { return c.out }

// Done closes when the client is torn down.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}
