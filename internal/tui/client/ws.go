package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSClient manages the WebSocket connection to the raidwatch server.
type WSClient struct {
	url   string
	token string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises pings
	conn    *websocket.Conn
	seq     uint64
	pingCtx context.CancelFunc // cancels the active ping goroutine
}

// NewWSClient creates a client that connects to the given WebSocket URL.
func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token}
}

// --- Bubble Tea messages ---

// WSConnectedMsg is sent when the WebSocket connects.
type WSConnectedMsg struct{}

// WSDisconnectedMsg is sent when the connection drops.
type WSDisconnectedMsg struct{ Err error }

// WSSnapshotMsg delivers the full session list.
type WSSnapshotMsg struct{ Payload SnapshotPayload }

// WSSessionMsg reports a session starting or ending.
type WSSessionMsg struct {
	Started bool
	Payload SessionPayload
}

// WSLogMsg carries a log-update or status-update line.
type WSLogMsg struct {
	ManagerID string
	Status    bool
	Text      string
}

// WSRaidMsg is sent for each raid-detected event.
type WSRaidMsg struct {
	ManagerID string
	Payload   RaidAlert
}

// WSInvasionMsg is sent for each accepted invasion alert.
type WSInvasionMsg struct {
	ManagerID string
	Payload   InvasionAlert
}

// WSEntryTimerMsg delivers a fresh entry deadline.
type WSEntryTimerMsg struct {
	ManagerID string
	Payload   EntryTime
}

// Listen returns a Bubble Tea command that connects and dispatches messages.
// It reconnects automatically on disconnect.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header())
			if err != nil {
				log.WithError(err).WithField("retry", delay).Debug("ws dial failed")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			// Cancel any previous ping goroutine.
			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.seq = 0
			c.pingCtx = pingCancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)

			return WSConnectedMsg{}
		}
	}
}

func (c *WSClient) header() http.Header {
	if c.token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

// ReadLoop returns a Bubble Tea command that reads messages from the connection.
// It should be started after receiving WSConnectedMsg and re-armed after
// every message it returns.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: errors.New("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return WSDisconnectedMsg{Err: err}
			}

			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.WithError(err).Debug("dropping malformed ws message")
				continue
			}

			c.mu.Lock()
			c.seq = msg.Seq
			c.mu.Unlock()

			if teaMsg := Dispatch(msg); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close drops the current connection, if any.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
		c.pingCtx = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Seq returns the last seen sequence number.
func (c *WSClient) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Dispatch converts a wire message into the matching Bubble Tea message.
// Unknown types and undecodable payloads yield nil.
func Dispatch(msg WSMessage) tea.Msg {
	switch msg.Type {
	case MsgSnapshot:
		var p SnapshotPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSSnapshotMsg{Payload: p}
		}
	case MsgSessionStarted, MsgSessionEnded:
		var p SessionPayload
		if json.Unmarshal(msg.Payload, &p) == nil && p.Session != nil {
			return WSSessionMsg{Started: msg.Type == MsgSessionStarted, Payload: p}
		}
	case MsgLogUpdate, MsgStatusUpdate:
		return WSLogMsg{
			ManagerID: msg.ManagerID,
			Status:    msg.Type == MsgStatusUpdate,
			Text:      Text(msg.Payload),
		}
	case MsgRaidDetected:
		var p RaidAlert
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSRaidMsg{ManagerID: msg.ManagerID, Payload: p}
		}
	case MsgAnalysisLog:
		var p InvasionAlert
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSInvasionMsg{ManagerID: msg.ManagerID, Payload: p}
		}
	case MsgEntryTimer:
		var p EntryTime
		if json.Unmarshal(msg.Payload, &p) == nil {
			return WSEntryTimerMsg{ManagerID: msg.ManagerID, Payload: p}
		}
	}
	return nil
}
