// Package bridge streams engine state and events to WebSocket
// observers so a dashboard or script can watch a wrapped session live.
package bridge

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Veraticus/idlewatch/pkg/inactivity"
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func newClient(conn *websocket.Conn, b *Broadcaster) *client {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// close is only called by the broadcaster once the client has left the
// map, so the send channel closes exactly once.
func (c *client) close() {
	close(c.send)
}

// Broadcaster fans engine state and events out to connected clients.
// Each client has its own buffered queue; clients that cannot keep up
// are disconnected rather than allowed to stall the session.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	stopped  bool
	hello    HelloPayload
	snapshot func() inactivity.State
}

// NewBroadcaster creates a broadcaster that greets every new client
// with hello and a state snapshot from the given source.
func NewBroadcaster(hello HelloPayload, snapshot func() inactivity.State) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*client]bool),
		hello:    hello,
		snapshot: snapshot,
	}
}

// AddClient registers a connection and greets it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn, b)

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		c.close()
		return c
	}
	b.clients[c] = true
	b.mu.Unlock()

	greeting := []Message{{Type: MsgHello, Payload: b.hello}}
	if b.snapshot != nil {
		greeting = append(greeting, Message{Type: MsgState, Payload: b.snapshot()})
	}
	for _, msg := range greeting {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("bridge marshal error: %v", err)
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow for its own greeting, drop the message
		}
	}

	return c
}

// RemoveClient unregisters a connection and closes its queue. Safe to
// call more than once.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// BroadcastEvent sends an engine event to every client, followed by
// the state snapshot taken at its emission.
func (b *Broadcaster) BroadcastEvent(event inactivity.Event) {
	b.broadcast(Message{Type: MsgEvent, Payload: event})
	b.broadcast(Message{Type: MsgState, Payload: event.State})
}

// BroadcastState sends a bare state snapshot to every client.
func (b *Broadcaster) BroadcastState(state inactivity.State) {
	b.broadcast(Message{Type: MsgState, Payload: state})
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("bridge marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("bridge client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop disconnects every client and rejects future ones.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
}
