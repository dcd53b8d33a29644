package server

import (
	"sync"

	"github.com/mariozechner/coding-agent/session/pkg/agent"
)

// hub fans agent.Event values out to websocket subscribers, one set of
// subscriber channels per session. Grounded on the teacher's
// stream.Subscribe/notifySubscribers non-blocking buffered-channel
// pattern (also reused by pkg/session/jsonl and pkg/session/sqlite), here
// keyed by session ID rather than broadcasting the session ID as the
// payload.
type hub struct {
	mu   sync.RWMutex
	subs map[string][]chan agent.Event
}

func newHub() *hub {
	return &hub{subs: make(map[string][]chan agent.Event)}
}

// subscribe registers a new subscriber for sessionID. The returned func
// unsubscribes and closes the channel.
func (h *hub) subscribe(sessionID string) (<-chan agent.Event, func()) {
	ch := make(chan agent.Event, 64)

	h.mu.Lock()
	h.subs[sessionID] = append(h.subs[sessionID], ch)
	h.mu.Unlock()

	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		chans := h.subs[sessionID]
		for i, c := range chans {
			if c == ch {
				h.subs[sessionID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsub
}

func (h *hub) publish(sessionID string, ev agent.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
