package live

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaani-ai/vaani/pkg/core/types"
)

// History is the append-only turn record of one session. Turns are
// appended at completion time, so list order is wall-clock completion
// order regardless of when the underlying requests were issued.
type History struct {
	mu    sync.Mutex
	turns []types.Turn
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{turns: make([]types.Turn, 0, 16)}
}

// Append commits a turn, stamping its ID and completion timestamp if
// unset, and returns the stamped copy.
func (h *History) Append(turn types.Turn) types.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	h.turns = append(h.turns, turn)
	return turn
}

// Window returns a copy of the last n turns.
func (h *History) Window(n int) []types.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.turns) {
		n = len(h.turns)
	}
	out := make([]types.Turn, n)
	copy(out, h.turns[len(h.turns)-n:])
	return out
}

// All returns a copy of the full history.
func (h *History) All() []types.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of committed turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
