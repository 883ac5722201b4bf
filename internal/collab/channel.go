package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bricksync/internal/metrics"
	"bricksync/internal/queue"
)

// State is the channel's connection lifecycle:
// Disconnected -> Connecting -> Connected -> Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Mode selects the wire framing. Simple mode is raw text frames with the
// room server's reserved prefixes; structured mode is JSON envelopes.
type Mode int

const (
	ModeSimple Mode = iota
	ModeStructured
)

type Config struct {
	// URL is the websocket origin, e.g. "ws://localhost:8765". The room
	// path is appended.
	URL  string
	Room string
	Mode Mode

	Dialer *websocket.Dialer
}

// queuedMessage is the durable form of an undeliverable outbound frame. The
// room travels with the frame so a shared queue can serve several rooms.
type queuedMessage struct {
	Room  string `json:"room"`
	Frame string `json:"data"`
}

// Channel delivers edit/undo/redo events to the participants of one room,
// best effort. While disconnected, outbound frames land in the room's
// pending queue; every new connection replays that queue in FIFO order
// before accepting new input, so offline-composed messages keep their place
// ahead of anything typed after reconnect. Delivery is at-least-once and
// ordered per sender; there is no global order across senders.
type Channel struct {
	pending *queue.PendingQueue
	log     *EditLog
	logger  *zap.Logger

	// OnMessage, when set, observes every accepted inbound message after
	// it has been applied to the log. Set before Connect.
	OnMessage func(Message)

	mu   sync.Mutex // guards conn, room and connection transitions
	cfg  Config
	conn *websocket.Conn
	gen  uint64 // connection generation; stale read loops see a newer one and exit

	state atomic.Int32
	peers atomic.Int32
}

func NewChannel(cfg Config, pending *queue.PendingQueue, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Channel{
		pending: pending,
		log:     NewEditLog(),
		logger:  logger.Named("collab"),
		cfg:     cfg,
	}
}

func (c *Channel) State() State { return State(c.state.Load()) }

func (c *Channel) Peers() int { return int(c.peers.Load()) }

func (c *Channel) Log() *EditLog { return c.log }

// Connect dials the room and replays the pending queue before returning.
// It is called on startup, on every observed offline-to-online transition
// and on room changes; calling it while already connected is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	c.state.Store(int32(StateConnecting))
	metrics.CollabReconnectsTotal.Inc()

	url := c.cfg.URL + "/ws/" + c.cfg.Room
	conn, _, err := c.cfg.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("collab dial %s: %w", url, err)
	}

	c.conn = conn
	c.gen++
	c.state.Store(int32(StateConnected))
	c.logger.Info("collab connected", zap.String("room", c.cfg.Room))

	// Queued frames go out first, in their original order. Send holds the
	// same lock, so nothing composed after reconnect can jump the line.
	if err := c.replayPendingLocked(ctx); err != nil {
		c.logger.Warn("replaying queued messages failed", zap.Error(err))
		c.closeLocked()
		return err
	}

	go c.readLoop(c.gen, conn)
	return nil
}

// replayPendingLocked sends every queued frame for this room in FIFO order,
// deleting each only after its write succeeded. Frames queued for other
// rooms are left in place. Caller holds c.mu.
func (c *Channel) replayPendingLocked(ctx context.Context) error {
	entries, err := c.pending.Entries(ctx)
	if err != nil {
		return err
	}

	for _, e := range entries {
		var qm queuedMessage
		if err := json.Unmarshal(e.Payload, &qm); err != nil {
			// Unreadable entry: drop it rather than wedge the queue.
			c.logger.Warn("dropping undecodable queued message", zap.Uint64("entry_id", e.ID))
			_ = c.pending.Delete(ctx, e.ID)
			continue
		}
		if qm.Room != c.cfg.Room {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(qm.Frame)); err != nil {
			return err
		}
		if err := c.pending.Delete(ctx, e.ID); err != nil {
			return err
		}
		metrics.CollabReplayedTotal.Inc()
	}
	return nil
}

// Send transmits an edit. The entry is echoed into the local log first so
// the sender sees their own action without waiting for the server; if the
// channel is down the frame is queued and retried on the next connection.
func (c *Channel) Send(ctx context.Context, data string) error {
	c.log.ApplyEdit(data)

	frame := data
	if c.cfg.Mode == ModeStructured {
		b, err := json.Marshal(Envelope{Type: string(TypeEdit), Data: data})
		if err != nil {
			return err
		}
		frame = string(b)
	}
	return c.sendFrame(ctx, frame)
}

// Undo retracts the latest visible entry, locally at once and on the room
// best effort.
func (c *Channel) Undo(ctx context.Context) error {
	c.log.ApplyUndo()
	return c.sendFrame(ctx, c.commandFrame(TypeUndo))
}

// Redo restores the most recently undone entry.
func (c *Channel) Redo(ctx context.Context) error {
	c.log.ApplyRedo()
	return c.sendFrame(ctx, c.commandFrame(TypeRedo))
}

// Chat sends on the room's chat side-channel (simple mode only); chat never
// touches the edit log.
func (c *Channel) Chat(ctx context.Context, text string) error {
	return c.sendFrame(ctx, chatCommand+text)
}

func (c *Channel) commandFrame(t MessageType) string {
	if c.cfg.Mode == ModeStructured {
		b, _ := json.Marshal(Envelope{Type: string(t)})
		return string(b)
	}
	if t == TypeRedo {
		return redoCommand
	}
	return undoCommand
}

func (c *Channel) sendFrame(ctx context.Context, frame string) error {
	c.mu.Lock()
	conn := c.conn
	if conn != nil {
		err := conn.WriteMessage(websocket.TextMessage, []byte(frame))
		if err == nil {
			c.mu.Unlock()
			return nil
		}
		c.logger.Warn("collab send failed, queueing", zap.Error(err))
		c.closeLocked()
	}
	c.mu.Unlock()

	return c.enqueue(ctx, frame)
}

func (c *Channel) enqueue(ctx context.Context, frame string) error {
	payload, err := json.Marshal(queuedMessage{Room: c.cfg.Room, Frame: frame})
	if err != nil {
		return err
	}
	if _, err := c.pending.Enqueue(ctx, payload); err != nil {
		return err
	}
	c.logger.Debug("collab message queued", zap.String("room", c.cfg.Room))
	return nil
}

func (c *Channel) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.gen == gen {
				c.logger.Info("collab disconnected", zap.Error(err))
				c.closeLocked()
			}
			c.mu.Unlock()
			return
		}
		c.handleFrame(string(data))
	}
}

// handleFrame applies one inbound frame. Malformed payloads are dropped
// silently; they must not crash the channel or block later messages.
func (c *Channel) handleFrame(frame string) {
	var msg Message
	if c.cfg.Mode == ModeStructured {
		var ok bool
		msg, ok = ParseStructured(frame)
		if !ok {
			c.logger.Debug("dropping malformed collab frame")
			return
		}
	} else {
		msg = ParseSimple(frame)
	}

	switch msg.Type {
	case TypeEdit:
		c.log.ApplyEdit(msg.Data)
	case TypeUndo:
		c.log.ApplyUndo()
	case TypeRedo:
		c.log.ApplyRedo()
	case TypePeers:
		c.peers.Store(int32(msg.Peers))
		metrics.CollabPeers.Set(float64(msg.Peers))
	case TypeChat:
		// Display-only side channel, no durable effect.
	}

	if c.OnMessage != nil {
		c.OnMessage(msg)
	}
}

// SetRoom switches rooms: the current connection is closed and a new one is
// dialed, which also replays anything queued for the new room.
func (c *Channel) SetRoom(ctx context.Context, room string) error {
	c.mu.Lock()
	c.closeLocked()
	c.cfg.Room = room
	c.mu.Unlock()

	return c.Connect(ctx)
}

// Close tears the connection down. Queued messages stay in the store for the
// next session.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

// closeLocked closes the socket and marks the channel disconnected. Caller
// holds c.mu.
func (c *Channel) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.state.Store(int32(StateDisconnected))
	c.peers.Store(0)
	metrics.CollabPeers.Set(0)
}
