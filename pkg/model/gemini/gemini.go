// Package gemini implements pkg/model.Model against the Google Gemini API,
// adapted from the teacher's single-tool IPython integration into a
// general multi-tool function-calling adapter.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/mariozechner/coding-agent/session/pkg/model"
	"github.com/mariozechner/coding-agent/session/pkg/session"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// LevelTrace is a custom log level for dumping raw HTTP traffic.
const LevelTrace = slog.Level(-8)

// Model implements model.Model using the Google Gemini API.
type Model struct {
	client *genai.Client
}

// New creates a Gemini-backed Model. apiKey is sent on every request via a
// logging http.RoundTripper rather than relying on the SDK's own injection,
// since a custom http.Client otherwise bypasses it.
func New(ctx context.Context, apiKey string) (*Model, error) {
	httpClient := &http.Client{
		Transport: &loggingTransport{base: http.DefaultTransport, apiKey: apiKey},
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Model{client: client}, nil
}

func (m *Model) Name() string { return "gemini" }

func (m *Model) Close() error {
	return m.client.Close()
}

func (m *Model) List(ctx context.Context) ([]string, error) {
	iter := m.client.ListModels(ctx)
	var names []string
	for {
		mdl, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, mdl.Name)
	}
	return names, nil
}

func toGenaiSchema(s map[string]any) *genai.Schema {
	if s == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	if props, ok := s["properties"].(map[string]any); ok {
		for name, raw := range props {
			p, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			prop := &genai.Schema{Type: genai.TypeString}
			if t, ok := p["type"].(string); ok && t == "integer" {
				prop.Type = genai.TypeInteger
			} else if t, ok := p["type"].(string); ok && t == "boolean" {
				prop.Type = genai.TypeBoolean
			}
			if desc, ok := p["description"].(string); ok {
				prop.Description = desc
			}
			out.Properties[name] = prop
		}
	}
	if req, ok := s["required"].([]string); ok {
		out.Required = req
	}
	return out
}

func (m *Model) toGenaiTools(tools []model.ToolSchema) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGenaiParts(content []session.Content) []genai.Part {
	var parts []genai.Part
	for _, c := range content {
		switch c.Type {
		case session.ContentTypeText:
			if c.Text != nil {
				parts = append(parts, genai.Text(c.Text.Content))
			}
		case session.ContentTypeToolUse:
			if c.ToolUse != nil {
				parts = append(parts, genai.FunctionCall{Name: c.ToolUse.Name, Args: c.ToolUse.Input})
			}
		case session.ContentTypeToolResult:
			if c.ToolResult != nil {
				parts = append(parts, genai.FunctionResponse{
					Name:     c.ToolResult.ToolName,
					Response: map[string]any{"result": c.ToolResult.Content},
				})
			}
		}
	}
	return parts
}

func (m *Model) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	slog.Debug("gemini.Stream", "model", req.Model, "messageCount", len(req.Messages))
	gm := m.client.GenerativeModel(req.Model)
	gm.Tools = m.toGenaiTools(req.Tools)
	if req.Instructions != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.Instructions)}}
	}
	if req.MaxOutputTokens > 0 {
		max := int32(req.MaxOutputTokens)
		gm.MaxOutputTokens = &max
	}

	var history []*genai.Content
	for _, msg := range req.Messages {
		parts := toGenaiParts(msg.Content)
		if len(parts) == 0 {
			continue
		}
		role := "user"
		if msg.Role == session.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: parts})
	}

	cs := gm.StartChat()
	var lastParts []genai.Part
	if len(history) > 0 {
		cs.History = history[:len(history)-1]
		lastParts = history[len(history)-1].Parts
	}

	iter := cs.SendMessageStream(ctx, lastParts...)
	return &stream{iter: iter}, nil
}

func (m *Model) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	s, err := m.Stream(ctx, req)
	if err != nil {
		return model.Response{}, err
	}
	defer s.Close()
	for {
		_, ok, err := s.Next(ctx)
		if err != nil {
			return model.Response{}, err
		}
		if !ok {
			break
		}
	}
	return s.Response()
}

type stream struct {
	iter    *genai.GenerateContentResponseIterator
	text    strings.Builder
	tools   []session.Content
	usage   session.Usage
	stop    session.StopReason
	done    bool
	lastErr error
}

func (s *stream) Next(ctx context.Context) (model.Part, bool, error) {
	if s.done {
		return model.Part{}, false, nil
	}
	resp, err := s.iter.Next()
	if err == iterator.Done {
		s.done = true
		s.stop = session.StopReasonStop
		return model.Part{Type: model.PartStepFinish, Usage: &s.usage, StopReason: s.stop}, true, nil
	}
	if err != nil {
		s.done = true
		s.lastErr = err
		return model.Part{Type: model.PartError, Err: err}, true, nil
	}

	if resp.UsageMetadata != nil {
		s.usage.InputTokens += int(resp.UsageMetadata.PromptTokenCount)
		s.usage.OutputTokens += int(resp.UsageMetadata.CandidatesTokenCount)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				s.text.WriteString(string(p))
				return model.Part{Type: model.PartTextDelta, Delta: string(p)}, true, nil
			case genai.FunctionCall:
				id := "call-" + uuid.New().String()
				s.tools = append(s.tools, session.Content{
					Type:    session.ContentTypeToolUse,
					ToolUse: &session.ToolUseContent{ID: id, Name: p.Name, Input: p.Args},
				})
				return model.Part{Type: model.PartToolCall, ToolCallID: id, ToolName: p.Name, ToolArgs: p.Args}, true, nil
			}
		}
	}
	return s.Next(ctx)
}

func (s *stream) Response() (model.Response, error) {
	if s.lastErr != nil {
		return model.Response{}, s.lastErr
	}
	var content []session.Content
	if s.text.Len() > 0 {
		content = append(content, session.Content{Type: session.ContentTypeText, Text: &session.TextContent{Content: s.text.String()}})
	}
	content = append(content, s.tools...)

	stopReason := s.stop
	if len(s.tools) > 0 {
		stopReason = session.StopReasonToolUse
	}
	if stopReason == "" {
		stopReason = session.StopReasonStop
	}

	msg := session.MessageEntry{
		Role:       session.RoleAssistant,
		Content:    content,
		Provider:   "google",
		Usage:      &s.usage,
		StopReason: stopReason,
	}
	return model.Response{Messages: []session.MessageEntry{msg}, StopReason: stopReason, Usage: s.usage}, nil
}

func (s *stream) Close() error { return nil }

type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !slog.Default().Enabled(req.Context(), LevelTrace) {
		return t.base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		slog.Debug("failed to dump gemini request", "error", err)
	} else {
		slog.Debug("gemini REST request", "url", req.URL.String(), "dump", string(reqDump))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")
	respDump, err := httputil.DumpResponse(resp, !isStream)
	if err != nil {
		slog.Debug("failed to dump gemini response", "error", err)
	} else {
		slog.Debug("gemini REST response", "isStream", isStream, "dump", string(respDump))
	}

	return resp, nil
}
