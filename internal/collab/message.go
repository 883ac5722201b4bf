package collab

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The room protocol has two framings. Simple mode is raw text with reserved
// prefixes (the room server's command echoes and presence signal):
//
//	PEERS 3        current participant count
//	UNDO: <entry>  an entry was undone
//	REDO: <entry>  an entry was restored
//	CHAT: <text>   chat side-channel
//	<anything>     a new edit
//
// Structured mode wraps the same kinds in a JSON envelope
// {"type":"edit"|"undo"|"redo","data":"..."}.

type MessageType string

const (
	TypeEdit  MessageType = "edit"
	TypeUndo  MessageType = "undo"
	TypeRedo  MessageType = "redo"
	TypeChat  MessageType = "chat"
	TypePeers MessageType = "peers"
)

const (
	peersPrefix = "PEERS "
	undoPrefix  = "UNDO: "
	redoPrefix  = "REDO: "
	chatPrefix  = "CHAT: "
)

// Outbound command frames in simple mode.
const (
	undoCommand = "/undo"
	redoCommand = "/redo"
	chatCommand = "/chat "
)

// Message is one decoded inbound frame.
type Message struct {
	Type  MessageType
	Data  string
	Peers int
}

// Envelope is the structured-mode wire format.
type Envelope struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// ParseSimple decodes a simple-mode text frame. It cannot fail: anything
// that is not a reserved prefix is an edit.
func ParseSimple(frame string) Message {
	switch {
	case strings.HasPrefix(frame, peersPrefix):
		n, err := strconv.Atoi(strings.TrimSpace(frame[len(peersPrefix):]))
		if err != nil || n < 0 {
			n = 0
		}
		return Message{Type: TypePeers, Peers: n}
	case strings.HasPrefix(frame, undoPrefix):
		return Message{Type: TypeUndo, Data: frame[len(undoPrefix):]}
	case strings.HasPrefix(frame, redoPrefix):
		return Message{Type: TypeRedo, Data: frame[len(redoPrefix):]}
	case strings.HasPrefix(frame, chatPrefix):
		return Message{Type: TypeChat, Data: frame[len(chatPrefix):]}
	default:
		return Message{Type: TypeEdit, Data: frame}
	}
}

// ParseStructured decodes a structured-mode JSON frame. Malformed payloads
// return ok=false and are dropped by the caller; they must never tear down
// the channel.
func ParseStructured(frame string) (Message, bool) {
	var env Envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		return Message{}, false
	}
	switch MessageType(env.Type) {
	case TypeEdit, TypeUndo, TypeRedo:
		return Message{Type: MessageType(env.Type), Data: env.Data}, true
	default:
		return Message{}, false
	}
}
