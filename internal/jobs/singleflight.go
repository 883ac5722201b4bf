package jobs

import "sync"

// flightGuard is the single-flight guard: at most one poll loop per
// kind/target may run at a time. The guard is owned by the Client instance,
// not ambient global state, so independent clients never interfere.
type flightGuard struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newFlightGuard() *flightGuard {
	return &flightGuard{inFlight: make(map[string]bool)}
}

func guardKey(kind Kind, target string) string {
	return string(kind) + "\x00" + target
}

// acquire marks (kind, target) as running. It reports false when a job for
// the same key is already in flight.
func (g *flightGuard) acquire(kind Kind, target string) bool {
	key := guardKey(kind, target)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight[key] {
		return false
	}
	g.inFlight[key] = true
	return true
}

// release clears the flag. Always called via defer so the guard is freed
// regardless of how the job ended.
func (g *flightGuard) release(kind Kind, target string) {
	key := guardKey(kind, target)

	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inFlight, key)
}
