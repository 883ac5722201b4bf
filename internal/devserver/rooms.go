package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// hub hosts the collaboration rooms. Each room keeps a shared history so
// peers can issue /undo and /redo; new peers receive the full history on
// connect. Frames are broadcast to every peer except the sender.
type hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	peers   map[*websocket.Conn]bool
	history []string
	redo    []string
	chat    []string
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		logger: logger.Named("rooms"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	rm, ok := h.rooms[name]
	if !ok {
		rm = &room{peers: make(map[*websocket.Conn]bool)}
		h.rooms[name] = rm
	}
	rm.peers[conn] = true
	h.broadcastPeersLocked(rm)
	// Replay the room state to the newcomer.
	for _, item := range rm.history {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(item))
	}
	for _, chat := range rm.chat {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("CHAT: "+chat))
	}
	h.mu.Unlock()

	defer h.leave(name, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handle(name, conn, string(data))
	}
}

func (h *hub) handle(name string, sender *websocket.Conn, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[name]
	if !ok {
		return
	}

	var broadcast string
	switch {
	case msg == "/undo":
		if n := len(rm.history); n > 0 {
			item := rm.history[n-1]
			rm.history = rm.history[:n-1]
			rm.redo = append(rm.redo, item)
			broadcast = "UNDO: " + item
		}
	case msg == "/redo":
		if n := len(rm.redo); n > 0 {
			item := rm.redo[n-1]
			rm.redo = rm.redo[:n-1]
			rm.history = append(rm.history, item)
			broadcast = "REDO: " + item
		}
	case strings.HasPrefix(msg, "/chat "):
		chat := msg[len("/chat "):]
		rm.chat = append(rm.chat, chat)
		broadcast = "CHAT: " + chat
	default:
		rm.history = append(rm.history, msg)
		rm.redo = nil
		broadcast = msg
	}

	if broadcast == "" {
		return
	}
	for peer := range rm.peers {
		if peer == sender {
			continue
		}
		_ = peer.WriteMessage(websocket.TextMessage, []byte(broadcast))
	}
}

func (h *hub) leave(name string, conn *websocket.Conn) {
	_ = conn.Close()

	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[name]
	if !ok {
		return
	}
	delete(rm.peers, conn)
	if len(rm.peers) == 0 {
		delete(h.rooms, name)
		return
	}
	h.broadcastPeersLocked(rm)
}

// broadcastPeersLocked tells everyone the current participant count. Caller
// holds h.mu.
func (h *hub) broadcastPeersLocked(rm *room) {
	msg := fmt.Sprintf("PEERS %d", len(rm.peers))
	for peer := range rm.peers {
		_ = peer.WriteMessage(websocket.TextMessage, []byte(msg))
	}
}
