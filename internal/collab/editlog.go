package collab

import "sync"

// EditLog is the client-local bookkeeping for a room's shared history: the
// entries observed so far and a single log-position index used for undo/redo.
// The index moves only when an edit, undo or redo event is applied; it is
// bounded by [0, len(entries)] and can never go negative.
type EditLog struct {
	mu      sync.Mutex
	entries []string
	index   int
}

func NewEditLog() *EditLog {
	return &EditLog{}
}

// ApplyEdit records a new entry at the current position and advances the
// index. Any undone tail is dropped first: the room server clears its redo
// stack on a fresh edit, so keeping the tail here would diverge from the
// room.
func (l *EditLog) ApplyEdit(data string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries[:l.index:l.index], data)
	l.index++
}

// ApplyUndo moves the index back by one. Entries are kept so a redo can
// restore them. Undo at position zero is a no-op.
func (l *EditLog) ApplyUndo() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index > 0 {
		l.index--
	}
}

// ApplyRedo moves the index forward by one, bounded by the log length.
func (l *EditLog) ApplyRedo() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index < len(l.entries) {
		l.index++
	}
}

// Index returns the current log position.
func (l *EditLog) Index() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index
}

// Len returns the total number of recorded entries, including undone ones.
func (l *EditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Visible returns the entries up to the current position, i.e. what the user
// should see after undo/redo are taken into account.
func (l *EditLog) Visible() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, l.index)
	copy(out, l.entries[:l.index])
	return out
}
