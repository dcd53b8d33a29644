// Package server exposes one or more agent.Agent instances, one per
// session, over HTTP and a websocket event relay. Grounded on the
// teacher's pkg/server/{server,handlers,websocket}.go, generalized from a
// single hardcoded Operative/sandbox pairing into a general session+agent
// server: route shape, CORS middleware, and JSON response helpers are kept
// near-identical; the per-entity REST resources (operatives, notes) are
// replaced with sessions, and the websocket relay streams agent.Event
// values instead of raw stream-store rows.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mariozechner/coding-agent/session/pkg/agent"
	"github.com/mariozechner/coding-agent/session/pkg/model"
	"github.com/mariozechner/coding-agent/session/pkg/session"
	"github.com/mariozechner/coding-agent/session/pkg/systemprompt"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

// Config wires a Server's dependencies.
type Config struct {
	Manager      session.Manager
	Model        model.Model
	ModelName    string
	Instructions string
	Tools        *tool.Registry
	Compaction   session.CompactionSettings
}

// Server serves the session/agent REST API and a websocket event relay.
type Server struct {
	manager      session.Manager
	model        model.Model
	modelName    string
	instructions string
	tools        *tool.Registry
	compaction   session.CompactionSettings

	hub     *hub
	metrics *metrics

	agents *agentCache

	srv *http.Server
}

// New creates a Server from cfg. It does not start listening until Start
// is called.
func New(cfg Config) *Server {
	return &Server{
		manager:      cfg.Manager,
		model:        cfg.Model,
		modelName:    cfg.ModelName,
		instructions: cfg.Instructions,
		tools:        cfg.Tools,
		compaction:   cfg.Compaction,
		hub:          newHub(),
		metrics:      newMetrics(),
		agents:       newAgentCache(),
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)

	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("POST /api/sessions/{id}/abort", s.handleAbort)
	mux.HandleFunc("POST /api/sessions/{id}/compact", s.handleCompact)

	mux.HandleFunc("/api/sessions/{id}/events", s.handleSessionEvents)

	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.Handle("GET /metrics", s.metrics.handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.corsMiddleware(mux),
	}

	slog.Info("starting agent server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// getOrCreateAgent returns the live agent.Agent for a session, constructing
// one (wired to the loaded session and this server's model/tools/compaction
// settings) on first use.
func (s *Server) getOrCreateAgent(id string) (*agent.Agent, error) {
	if a, ok := s.agents.get(id); ok {
		return a, nil
	}

	sess, err := s.manager.LoadSession(id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	instructions := s.instructions
	if instructions == "" {
		instructions = systemprompt.Build(systemprompt.Options{}, systemprompt.Call{
			SelectedTools: toolNames(s.tools),
			Cwd:           sess.Header().Cwd,
		}, toolInfos(s.tools))
	}

	a := agent.New(agent.Config{
		Model:        s.model,
		ModelName:    s.modelName,
		Instructions: instructions,
		Tools:        s.tools,
		Session:      sess,
		Compaction:   s.compaction,
	})
	s.agents.put(id, a)
	s.metrics.activeSessions.Set(float64(s.agents.len()))
	return a, nil
}

func toolNames(r *tool.Registry) []string {
	if r == nil {
		return nil
	}
	var names []string
	for _, t := range r.List() {
		names = append(names, t.Name())
	}
	return names
}

func toolInfos(r *tool.Registry) []systemprompt.ToolInfo {
	if r == nil {
		return nil
	}
	var infos []systemprompt.ToolInfo
	for _, t := range r.List() {
		infos = append(infos, systemprompt.ToolInfo{Name: t.Name(), Description: t.Description()})
	}
	return infos
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("api error", "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
