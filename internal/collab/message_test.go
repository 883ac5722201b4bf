package collab

import "testing"

func TestParseSimple(t *testing.T) {
	t.Parallel()

	cases := []struct {
		frame string
		want  Message
	}{
		{"PEERS 3", Message{Type: TypePeers, Peers: 3}},
		{"PEERS nonsense", Message{Type: TypePeers, Peers: 0}},
		{"UNDO: block at 1,2", Message{Type: TypeUndo, Data: "block at 1,2"}},
		{"REDO: block at 1,2", Message{Type: TypeRedo, Data: "block at 1,2"}},
		{"CHAT: hello", Message{Type: TypeChat, Data: "hello"}},
		{"place brick", Message{Type: TypeEdit, Data: "place brick"}},
		{"", Message{Type: TypeEdit, Data: ""}},
	}

	for _, c := range cases {
		if got := ParseSimple(c.frame); got != c.want {
			t.Fatalf("ParseSimple(%q) = %+v, want %+v", c.frame, got, c.want)
		}
	}
}

func TestParseStructured(t *testing.T) {
	t.Parallel()

	msg, ok := ParseStructured(`{"type":"edit","data":"place brick"}`)
	if !ok || msg.Type != TypeEdit || msg.Data != "place brick" {
		t.Fatalf("unexpected parse: %+v ok=%v", msg, ok)
	}

	msg, ok = ParseStructured(`{"type":"undo"}`)
	if !ok || msg.Type != TypeUndo {
		t.Fatalf("unexpected parse: %+v ok=%v", msg, ok)
	}
}

func TestParseStructuredMalformedDropped(t *testing.T) {
	t.Parallel()

	for _, frame := range []string{
		"not json",
		`{"type":"explode"}`,
		`{}`,
		`[1,2,3]`,
	} {
		if _, ok := ParseStructured(frame); ok {
			t.Fatalf("expected %q to be dropped", frame)
		}
	}
}
