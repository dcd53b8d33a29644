package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mariozechner/coding-agent/session/pkg/compaction"
	"github.com/mariozechner/coding-agent/session/pkg/session"
)

// --- Sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.manager.ListSessions()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, infos)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentSessionID string `json:"parentSessionId"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, err)
			return
		}
	}

	sess, err := s.manager.NewSession(req.ParentSessionID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	id := sess.ID()
	sess.Close()
	s.jsonResponse(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.manager.LoadSession(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	defer sess.Close()

	entries, err := sess.GetContext()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"header":  sess.Header(),
		"leafId":  sess.LeafID(),
		"entries": entries,
	})
}

// --- Messages ---

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if req.Content == "" {
		s.errorResponse(w, http.StatusBadRequest, errEmptyContent)
		return
	}

	a, err := s.getOrCreateAgent(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}

	prompt := []session.Content{{Type: session.ContentTypeText, Text: &session.TextContent{Content: req.Content}}}

	// Run the turn in the background; the websocket relay (and the
	// session log itself) is how a caller observes the result. Mirrors
	// the teacher's websocket-driven chat loop, generalized to a
	// request/relay split instead of a single connection doing both.
	go func() {
		events, wait := a.Stream(context.Background(), prompt)
		for ev := range events {
			s.metrics.observe(ev)
			s.hub.publish(id, ev)
		}
		if err := wait(); err != nil {
			s.hub.publish(id, agentErrorEvent(err))
		}
	}()

	s.jsonResponse(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := s.agents.get(id)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, errNoLiveAgent)
		return
	}
	a.Abort()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.getOrCreateAgent(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}

	result, err := a.Compact(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.compactions.Inc()
	s.jsonResponse(w, http.StatusOK, compactionResponse(result))
}

func compactionResponse(r *compaction.Result) map[string]any {
	if r == nil {
		return map[string]any{"compacted": false}
	}
	return map[string]any{
		"compacted":        true,
		"summary":          r.Summary,
		"firstKeptEntryId": r.FirstKeptEntryID,
		"tokensBefore":     r.TokensBefore,
	}
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	names, err := s.model.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, names)
}
