package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/raidwatch/raidwatch/internal/event"
	"github.com/raidwatch/raidwatch/internal/session"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// has been reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans UI events out to every connected websocket client. It is
// the event.Sink the monitor writes engine events to.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	store    *session.Store
	maxConns int

	// sendMu keeps seq order and delivery order the same for every client.
	sendMu sync.Mutex
	seq    uint64

	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once
	log            *log.Entry
}

// NewBroadcaster creates a broadcaster. A positive snapshotInterval resends
// the session list periodically. maxConns of zero means unlimited.
func NewBroadcaster(store *session.Store, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		store:    store,
		maxConns: maxConns,
		stop:     make(chan struct{}),
		log:      log.WithField("component", "ws"),
	}

	if snapshotInterval > 0 {
		b.snapshotTicker = time.NewTicker(snapshotInterval)
		go b.snapshotLoop()
	}
	return b
}

// Stop ends the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		if b.snapshotTicker != nil {
			b.snapshotTicker.Stop()
		}
		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{conn: conn, b: b, send: make(chan []byte, sendBuffer)}

	// Registering under sendMu puts the snapshot ahead of every later event.
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true

	if data, err := b.encode(MsgSnapshot, "", SnapshotPayload{Sessions: b.sessions()}); err == nil {
		c.send <- data
	}

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Emit implements event.Sink.
func (b *Broadcaster) Emit(ev event.Event) {
	b.broadcast(string(ev.Name), ev.ManagerID, ev.Payload)
}

// SessionChanged forwards a session lifecycle event to clients. It is meant
// to be registered as the monitor's session hook.
func (b *Broadcaster) SessionChanged(ev session.Event) {
	typ := MsgSessionStarted
	if ev.Type == session.EventEnded {
		typ = MsgSessionEnded
	}
	managerID := ""
	if ev.State != nil {
		managerID = ev.State.ManagerID
	}
	b.broadcast(typ, managerID, SessionPayload{Session: ev.State, ActiveCount: ev.ActiveCount})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(MsgSnapshot, "", SnapshotPayload{Sessions: b.sessions()})
		}
	}
}

func (b *Broadcaster) sessions() []*session.State {
	if b.store == nil {
		return []*session.State{}
	}
	return b.store.GetAll()
}

// encode assigns the next sequence number. Callers hold sendMu.
func (b *Broadcaster) encode(typ, managerID string, payload interface{}) ([]byte, error) {
	b.seq++
	data, err := json.Marshal(WSMessage{Type: typ, Seq: b.seq, ManagerID: managerID, Payload: payload})
	if err != nil {
		b.log.WithError(err).WithField("type", typ).Error("broadcast marshal error")
		return nil, err
	}
	return data, nil
}

func (b *Broadcaster) broadcast(typ, managerID string, payload interface{}) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	data, err := b.encode(typ, managerID, payload)
	if err != nil {
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		// Client can't keep up, disconnect it
		b.log.Warn("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}
