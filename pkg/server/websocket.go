package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mariozechner/coding-agent/session/pkg/agent"
	"github.com/mariozechner/coding-agent/session/pkg/session"
)

var errEmptyContent = errors.New("content must not be empty")
var errNoLiveAgent = errors.New("no live agent for this session")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func agentErrorEvent(err error) agent.Event {
	return agent.Event{Type: agent.EventAgentEnd, ErrorMessage: err.Error()}
}

// handleSessionEvents relays a session's agent.Event stream to a websocket
// client. Grounded on the teacher's handleChatWebSocket: upgrade, a writer
// goroutine fed by a subscribe channel with a keepalive ticker, and a
// reader loop whose only job is to detect the client going away. The
// teacher's reader loop also accepted user chat input over the socket;
// here that is POST /api/sessions/{id}/messages instead, so the reader
// loop here only watches for close.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	if _, err := s.manager.LoadSession(id); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	events, unsub := s.hub.subscribe(id)
	defer unsub()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := ws.WriteJSON(wireEvent(ev)); err != nil {
				slog.Error("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wireEvent is the JSON-friendly projection of an agent.Event: the same
// fields except CompactionResult and WillRetry, which are not sent,
// marshaled through encoding/json's struct tags. session.MessageEntry
// already carries its own json tags, so it is embedded directly.
func wireEvent(ev agent.Event) json.RawMessage {
	b, err := json.Marshal(struct {
		Type             agent.EventType        `json:"type"`
		Message          *session.MessageEntry   `json:"message,omitempty"`
		Delta            string                  `json:"delta,omitempty"`
		ToolCallID       string                  `json:"toolCallId,omitempty"`
		ToolName         string                  `json:"toolName,omitempty"`
		ToolArgs         map[string]any          `json:"toolArgs,omitempty"`
		ToolResult       string                  `json:"toolResult,omitempty"`
		IsError          bool                    `json:"isError,omitempty"`
		PartialResult    string                  `json:"partialResult,omitempty"`
		CompactionReason string                  `json:"compactionReason,omitempty"`
		Aborted          bool                    `json:"aborted,omitempty"`
		ErrorMessage     string                  `json:"errorMessage,omitempty"`
	}{
		Type:             ev.Type,
		Message:          ev.Message,
		Delta:            ev.Delta,
		ToolCallID:       ev.ToolCallID,
		ToolName:         ev.ToolName,
		ToolArgs:         ev.ToolArgs,
		ToolResult:       ev.ToolResult,
		IsError:          ev.IsError,
		PartialResult:    ev.PartialResult,
		CompactionReason: ev.CompactionReason,
		Aborted:          ev.Aborted,
		ErrorMessage:     ev.ErrorMessage,
	})
	if err != nil {
		return json.RawMessage(`{"type":"marshal_error"}`)
	}
	return b
}
