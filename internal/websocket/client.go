package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second

	// maxDropped consecutive missed messages disconnect a client. A feed
	// with gaps is worse than a reconnect followed by a fresh query.
	maxDropped = 32
)

// TypeSubscribed is the first message on every connection. Its data is the
// effective Subscription, which for children is always narrowed to
// themselves.
const TypeSubscribed = "subscribed"

// Client is one feed connection with its filter.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	sub  Subscription
	send chan []byte

	dropped  atomic.Int32
	evict    chan struct{}
	evictOne sync.Once
}

func NewClient(hub *Hub, conn *ws.Conn, sub Subscription) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		sub:   sub,
		send:  make(chan []byte, sendBufferSize),
		evict: make(chan struct{}),
	}
}

// deliver queues data without blocking. It reports false when the buffer
// is full, and evicts the client after maxDropped misses in a row.
func (c *Client) deliver(data []byte) bool {
	select {
	case c.send <- data:
		c.dropped.Store(0)
		return true
	default:
		if c.dropped.Add(1) >= maxDropped {
			c.evictOne.Do(func() { close(c.evict) })
		}
		return false
	}
}

// Run registers the client, writes until the connection ends or the client
// is evicted, and unregisters.
func (c *Client) Run(ctx context.Context) {
	hello, _ := json.Marshal(Message{Type: TypeSubscribed, FamilyID: c.sub.FamilyID, UserID: c.sub.UserID, Data: c.sub})
	c.send <- hello

	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx, cancel)
	c.readPump(ctx)
}

// readPump discards incoming messages; the feed is one way. It returns when
// the connection closes.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cancel()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, done := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			done()
			if err != nil {
				return
			}
		case <-c.evict:
			c.hub.logger.Warn("evicting slow client", "family_id", c.sub.FamilyID, "user_id", c.sub.UserID)
			c.conn.Close(ws.StatusPolicyViolation, "client too slow")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
