package identity

import (
	"sync"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
)

// Subscriber delivers session changes for one user.
type Subscriber interface {
	Subscribe(userID string) (<-chan models.Session, func())
}

// Hub fans session changes out to subscribers in this process.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan models.Session]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan models.Session]struct{}{}}
}

// Subscribe returns a channel receiving every later change to userID's
// sessions. The cancel func must be called to release it.
func (h *Hub) Subscribe(userID string) (<-chan models.Session, func()) {
	ch := make(chan models.Session, 4)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[chan models.Session]struct{}{}
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
		})
	}
}

// Publish notifies userID's subscribers. Slow subscribers miss events
// instead of blocking the publisher.
func (h *Hub) Publish(s models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[s.UserID] {
		select {
		case ch <- s:
		default:
		}
	}
}
