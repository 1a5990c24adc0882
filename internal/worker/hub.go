package worker

import "sync"

// StatusHub wakes workers waiting on a paused campaign as soon as its
// status changes, instead of on the next poll tick.
type StatusHub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewStatusHub() *StatusHub {
	return &StatusHub{subs: make(map[string]map[chan struct{}]struct{})}
}

func (h *StatusHub) Subscribe(campaignID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subs[campaignID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[campaignID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[campaignID], ch)
		if len(h.subs[campaignID]) == 0 {
			delete(h.subs, campaignID)
		}
	}
}

// Notify never blocks; a subscriber with a pending wake-up keeps just one.
func (h *StatusHub) Notify(campaignID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[campaignID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
