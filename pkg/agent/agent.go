// Package agent implements the streaming agent loop: it drives a Model
// through outer (follow-up) and inner (tool-call) iterations, dispatches
// tool calls concurrently, persists to a session, and triggers compaction
// when configured. Grounded on the teacher's event-driven runner/step
// split (pkg/runner/{runner,step}.go), generalized from an
// subscribe-one-event-at-a-time design into a single in-process streaming
// call with its own abort controller and steering queue, per the agent
// loop contract.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mariozechner/coding-agent/session/pkg/compaction"
	"github.com/mariozechner/coding-agent/session/pkg/model"
	"github.com/mariozechner/coding-agent/session/pkg/session"
	"github.com/mariozechner/coding-agent/session/pkg/tokens"
	"github.com/mariozechner/coding-agent/session/pkg/tool"
)

// EventType identifies the kind of event emitted on an agent's event stream.
type EventType string

const (
	EventAgentStart         EventType = "agent_start"
	EventAgentEnd           EventType = "agent_end"
	EventTurnStart          EventType = "turn_start"
	EventTurnEnd            EventType = "turn_end"
	EventMessageStart       EventType = "message_start"
	EventTextDelta          EventType = "text_delta"
	EventThinkingDelta      EventType = "thinking_delta"
	EventMessageUpdate      EventType = "message_update"
	EventMessageEnd         EventType = "message_end"
	EventToolCallStart      EventType = "toolcall_start"
	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionUpd   EventType = "tool_execution_update"
	EventToolExecutionEnd   EventType = "tool_execution_end"
	EventAutoCompactStart   EventType = "auto_compaction_start"
	EventAutoCompactEnd     EventType = "auto_compaction_end"
)

// Event is one item on an agent's event stream. Only the fields relevant
// to Type are populated.
type Event struct {
	Type EventType

	Message *session.MessageEntry
	Delta   string

	ToolCallID    string
	ToolName      string
	ToolArgs      map[string]any
	ToolResult    string
	IsError       bool
	PartialResult string

	CompactionReason string
	CompactionResult *compaction.Result
	Aborted          bool
	WillRetry        bool
	ErrorMessage     string
}

// FollowUpProvider is invoked after the model stops; a non-empty return
// restarts the outer loop with those messages.
type FollowUpProvider func(last session.MessageEntry) []session.MessageEntry

// Config wires an Agent's dependencies.
type Config struct {
	Model            model.Model
	ModelName        string
	Instructions     string
	Tools            *tool.Registry
	Session          session.Session // optional; when set, responses auto-persist
	Compaction       session.CompactionSettings
	CompactionModel  model.Model // falls back to Model when nil
	CompactionMode   string      // "auto" | "manual", default "auto"
	FollowUpProvider FollowUpProvider
	MaxSteps         int // 0 means unlimited; caps model calls across one Stream/Generate run
}

// Agent drives one conversation: model calls, tool dispatch, steering,
// auto-persist, and auto-compaction. Not safe for concurrent Stream/Generate
// calls on the same instance (spec: undefined behavior).
type Agent struct {
	model           model.Model
	modelName       string
	instructions    string
	tools           *tool.Registry
	sess            session.Session
	compactionCfg   session.CompactionSettings
	compactionModel model.Model
	compactionMode  string
	followUp        FollowUpProvider
	maxSteps        int

	mu       sync.Mutex
	messages []session.MessageEntry
	steering []session.MessageEntry
	steps    int

	abortMu sync.Mutex
	cancel  context.CancelFunc
}

func New(cfg Config) *Agent {
	compactionModel := cfg.CompactionModel
	if compactionModel == nil {
		compactionModel = cfg.Model
	}
	mode := cfg.CompactionMode
	if mode == "" {
		mode = "auto"
	}
	a := &Agent{
		model:           cfg.Model,
		modelName:       cfg.ModelName,
		instructions:    cfg.Instructions,
		tools:           cfg.Tools,
		sess:            cfg.Session,
		compactionCfg:   cfg.Compaction,
		compactionModel: compactionModel,
		compactionMode:  mode,
		followUp:        cfg.FollowUpProvider,
		maxSteps:        cfg.MaxSteps,
	}
	if a.sess != nil {
		a.rebuildFromSession()
	}
	return a
}

func (a *Agent) rebuildFromSession() {
	entries, err := a.sess.GetContext()
	if err != nil {
		slog.Error("agent: failed to rebuild context from session", "error", err)
		return
	}
	messages, _ := session.BuildSessionContext(entries)
	a.mu.Lock()
	a.messages = messages
	a.mu.Unlock()
}

// Steer enqueues a user message to be delivered at the next step boundary.
func (a *Agent) Steer(content []session.Content) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.steering = append(a.steering, session.MessageEntry{Role: session.RoleUser, Content: content})
}

// Abort cancels the current call, all in-flight tool executions, and any
// in-flight compaction.
func (a *Agent) Abort() {
	a.abortMu.Lock()
	defer a.abortMu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Generate runs the agent loop to completion and returns the final
// assistant message and aggregate usage, persisting to the session if one
// is attached.
func (a *Agent) Generate(ctx context.Context, prompt []session.Content) (session.MessageEntry, session.Usage, error) {
	events := make(chan Event, 64)
	done := make(chan struct{})
	var final session.MessageEntry
	var usage session.Usage
	var runErr error

	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type == EventMessageEnd && ev.Message != nil && ev.Message.Role == session.RoleAssistant {
				final = *ev.Message
				if ev.Message.Usage != nil {
					usage = addUsage(usage, *ev.Message.Usage)
				}
			}
		}
	}()

	runErr = a.run(ctx, prompt, events)
	close(events)
	<-done
	return final, usage, runErr
}

// Stream runs the agent loop, returning a channel of Events and a function
// that blocks until the run completes, returning any error.
func (a *Agent) Stream(ctx context.Context, prompt []session.Content) (<-chan Event, func() error) {
	events := make(chan Event, 64)
	errCh := make(chan error, 1)

	go func() {
		err := a.run(ctx, prompt, events)
		close(events)
		errCh <- err
	}()

	return events, func() error { return <-errCh }
}

func addUsage(a, b session.Usage) session.Usage {
	return session.Usage{
		InputTokens:      a.InputTokens + b.InputTokens,
		OutputTokens:     a.OutputTokens + b.OutputTokens,
		CacheReadTokens:  a.CacheReadTokens + b.CacheReadTokens,
		CacheWriteTokens: a.CacheWriteTokens + b.CacheWriteTokens,
		CostUSD:          a.CostUSD + b.CostUSD,
	}
}

// run is the main loop described by spec §4.6: outer (follow-up) wrapping
// inner (tool-call) iterations.
func (a *Agent) run(ctx context.Context, prompt []session.Content, events chan<- Event) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.abortMu.Lock()
	a.cancel = cancel
	a.abortMu.Unlock()
	defer cancel()

	a.mu.Lock()
	a.steps = 0
	a.mu.Unlock()

	events <- Event{Type: EventAgentStart}

	if len(prompt) > 0 {
		userMsg := session.MessageEntry{Role: session.RoleUser, Content: prompt}
		a.appendMessage(userMsg)
		if a.sess != nil {
			if _, err := a.sess.AppendMessage(session.RoleUser, prompt); err != nil {
				return fmt.Errorf("agent: persist user message: %w", err)
			}
		}
	}

	var lastAssistant session.MessageEntry
	for {
		aborted, err := a.innerLoop(runCtx, events, &lastAssistant)
		if err != nil {
			events <- Event{Type: EventAgentEnd}
			return err
		}
		if aborted {
			events <- Event{Type: EventAgentEnd}
			return nil
		}

		if a.followUp == nil {
			break
		}
		followups := a.followUp(lastAssistant)
		if len(followups) == 0 {
			break
		}
		for _, m := range followups {
			a.appendMessage(m)
		}
	}

	events <- Event{Type: EventAgentEnd}

	if a.compactionMode == "auto" && a.compactionCfg.Enabled {
		a.maybeAutoCompact(runCtx, events)
	}
	return nil
}

// innerLoop runs steps until the assistant stops calling tools and the
// steering queue is empty.
func (a *Agent) innerLoop(ctx context.Context, events chan<- Event, lastAssistant *session.MessageEntry) (aborted bool, err error) {
	for {
		events <- Event{Type: EventTurnStart}

		for _, m := range a.drainSteering() {
			events <- Event{Type: EventMessageStart, Message: &m}
			a.appendMessage(m)
			if a.sess != nil {
				if _, err := a.sess.AppendMessage(m.Role, m.Content); err != nil {
					return false, fmt.Errorf("agent: persist steering message: %w", err)
				}
			}
			events <- Event{Type: EventMessageEnd, Message: &m}
		}

		if a.maxSteps > 0 {
			a.mu.Lock()
			a.steps++
			overBudget := a.steps > a.maxSteps
			a.mu.Unlock()
			if overBudget {
				events <- Event{Type: EventTurnEnd}
				return false, nil
			}
		}

		assistantMsg, stepAborted, err := a.step(ctx, events)
		if err != nil {
			return false, err
		}
		*lastAssistant = assistantMsg
		events <- Event{Type: EventTurnEnd}

		if stepAborted {
			return true, nil
		}

		toolCalls := toolCallsOf(assistantMsg)
		if len(toolCalls) == 0 && len(a.peekSteering()) == 0 {
			return false, nil
		}
		if len(toolCalls) == 0 {
			continue
		}
	}
}

// step runs one model call: streams parts, dispatches tool calls
// concurrently once the assistant message completes, and appends the
// resulting assistant (+ tool-result) message(s).
func (a *Agent) step(ctx context.Context, events chan<- Event) (session.MessageEntry, bool, error) {
	req := model.Request{
		Model:        a.modelName,
		Instructions: a.instructions,
		Messages:     a.snapshotMessages(),
		Tools:        a.toolSchemas(),
	}

	stream, err := a.model.Stream(ctx, req)
	if err != nil {
		return session.MessageEntry{}, false, fmt.Errorf("agent: model stream: %w", err)
	}
	defer stream.Close()

	assistantMsg := session.MessageEntry{Role: session.RoleAssistant}
	events <- Event{Type: EventMessageStart, Message: &assistantMsg}

	var toolCalls []session.ToolUseContent
	aborted := false

partLoop:
	for {
		part, ok, perr := stream.Next(ctx)
		if perr != nil {
			if ctx.Err() != nil {
				aborted = true
			}
			assistantMsg.StopReason = session.StopReasonError
			assistantMsg.Error = perr.Error()
			break
		}
		if !ok {
			break
		}
		switch part.Type {
		case model.PartTextDelta:
			appendTextDelta(&assistantMsg, part.Delta)
			events <- Event{Type: EventTextDelta, Delta: part.Delta}
		case model.PartReasoningDelta:
			appendThinkingDelta(&assistantMsg, part.Delta, part.Signature)
			events <- Event{Type: EventThinkingDelta, Delta: part.Delta}
		case model.PartToolCall:
			tc := session.ToolUseContent{ID: part.ToolCallID, Name: part.ToolName, Input: part.ToolArgs}
			toolCalls = append(toolCalls, tc)
			assistantMsg.Content = append(assistantMsg.Content, session.Content{Type: session.ContentTypeToolUse, ToolUse: &tc})
			events <- Event{Type: EventToolCallStart, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: tc.Input}
		case model.PartStepFinish:
			if part.Usage != nil {
				assistantMsg.Usage = part.Usage
			}
			assistantMsg.StopReason = part.StopReason
		case model.PartError:
			if ctx.Err() != nil {
				aborted = true
				assistantMsg.StopReason = session.StopReasonAborted
			} else {
				assistantMsg.StopReason = session.StopReasonError
			}
			if part.Err != nil {
				assistantMsg.Error = part.Err.Error()
			}
			break partLoop
		case model.PartFinish:
			break partLoop
		}
		if ctx.Err() != nil {
			aborted = true
			assistantMsg.StopReason = session.StopReasonAborted
			break
		}
	}

	a.appendMessage(assistantMsg)
	if a.sess != nil {
		if _, err := a.sess.AppendMessage(session.RoleAssistant, assistantMsg.Content); err != nil {
			return assistantMsg, aborted, fmt.Errorf("agent: persist assistant message: %w", err)
		}
	}
	events <- Event{Type: EventMessageEnd, Message: &assistantMsg}

	if aborted || len(toolCalls) == 0 {
		return assistantMsg, aborted, nil
	}

	toolResults := a.dispatchTools(ctx, events, toolCalls)
	toolMsg := session.MessageEntry{Role: session.RoleTool, Content: toolResults}
	a.appendMessage(toolMsg)
	if a.sess != nil {
		if _, err := a.sess.AppendMessage(session.RoleTool, toolResults); err != nil {
			return assistantMsg, aborted, fmt.Errorf("agent: persist tool result message: %w", err)
		}
	}
	events <- Event{Type: EventMessageStart, Message: &toolMsg}
	events <- Event{Type: EventMessageEnd, Message: &toolMsg}

	return assistantMsg, false, nil
}

// dispatchTools runs every tool call in toolCalls concurrently, bounded
// only by len(toolCalls), and collects results in call order.
func (a *Agent) dispatchTools(ctx context.Context, events chan<- Event, toolCalls []session.ToolUseContent) []session.Content {
	results := make([]session.Content, len(toolCalls))
	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		wg.Add(1)
		go func(i int, tc session.ToolUseContent) {
			defer wg.Done()
			events <- Event{Type: EventToolExecutionStart, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: tc.Input}

			if ctx.Err() != nil {
				events <- Event{Type: EventToolExecutionEnd, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: "Operation aborted", IsError: true}
				results[i] = errorResult(tc, "Operation aborted")
				return
			}

			t, ok := a.tools.Get(tc.Name)
			if !ok {
				msg := fmt.Sprintf("unknown tool: %s", tc.Name)
				events <- Event{Type: EventToolExecutionEnd, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: msg, IsError: true}
				results[i] = errorResult(tc, msg)
				return
			}
			if err := a.tools.Validate(tc.Name, tc.Input); err != nil {
				msg := fmt.Sprintf("invalid input: %v", err)
				events <- Event{Type: EventToolExecutionEnd, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: msg, IsError: true}
				results[i] = errorResult(tc, msg)
				return
			}

			opts := tool.ExecuteOpts{
				ToolCallID: tc.ID,
				OnPartial: func(text string) {
					events <- Event{Type: EventToolExecutionUpd, ToolCallID: tc.ID, ToolName: tc.Name, PartialResult: text}
				},
			}
			res, err := t.Execute(ctx, tc.Input, opts)
			if err != nil {
				msg := err.Error()
				if ctx.Err() != nil {
					msg = "Operation aborted"
				}
				events <- Event{Type: EventToolExecutionEnd, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: msg, IsError: true}
				results[i] = errorResult(tc, msg)
				return
			}

			events <- Event{Type: EventToolExecutionEnd, ToolCallID: tc.ID, ToolName: tc.Name, ToolResult: res.Text}
			content := session.Content{Type: session.ContentTypeToolResult, ToolResult: &session.ToolResultContent{
				ToolUseID: tc.ID, ToolName: tc.Name, Content: res.Text,
			}}
			if res.Image != nil {
				content.ToolResult.Image = &session.ImageContent{Source: &session.ImageSource{
					Type: "base64", MediaType: res.Image.MediaType, Data: res.Image.Data,
				}}
			}
			results[i] = content
		}(i, tc)
	}
	wg.Wait()
	return results
}

func errorResult(tc session.ToolUseContent, msg string) session.Content {
	return session.Content{Type: session.ContentTypeToolResult, ToolResult: &session.ToolResultContent{
		ToolUseID: tc.ID, ToolName: tc.Name, IsError: true, Content: msg,
	}}
}

// Compact runs manual compaction, bypassing the threshold check but still
// requiring a valid cut point. Returns nil, nil when there is nothing to
// compact.
func (a *Agent) Compact(ctx context.Context) (*compaction.Result, error) {
	if a.sess == nil {
		return nil, fmt.Errorf("agent: compact requires an attached session")
	}
	entries, err := a.sess.GetContext()
	if err != nil {
		return nil, fmt.Errorf("agent: compact: %w", err)
	}
	prep, err := compaction.Prepare(entries, a.compactionCfg)
	if err != nil {
		return nil, fmt.Errorf("agent: compact: %w", err)
	}
	if prep == nil {
		return nil, nil
	}
	result, err := compaction.Compact(ctx, prep, a.compactionModel, a.modelName, a.compactionCfg)
	if err != nil {
		return nil, err
	}
	if _, err := a.sess.AppendCompaction(result.Summary, result.FirstKeptEntryID, result.TokensBefore); err != nil {
		return nil, fmt.Errorf("agent: compact: persist: %w", err)
	}
	a.rebuildFromSession()
	return result, nil
}

func (a *Agent) maybeAutoCompact(ctx context.Context, events chan<- Event) {
	if a.sess == nil {
		return
	}
	messages := a.snapshotMessages()
	estimated := tokens.EstimateContext(messages)
	reserved := a.compactionCfg.ReserveTokens
	if estimated < a.compactionCfg.KeepRecentTokens+reserved {
		return
	}

	events <- Event{Type: EventAutoCompactStart, CompactionReason: "threshold"}
	result, err := a.Compact(ctx)
	if err != nil {
		aborted := ctx.Err() != nil
		events <- Event{Type: EventAutoCompactEnd, Aborted: aborted, WillRetry: !aborted, ErrorMessage: err.Error()}
		return
	}
	events <- Event{Type: EventAutoCompactEnd, CompactionResult: result}
}

func (a *Agent) appendMessage(m session.MessageEntry) {
	a.mu.Lock()
	a.messages = append(a.messages, m)
	a.mu.Unlock()
}

func (a *Agent) snapshotMessages() []session.MessageEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]session.MessageEntry, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *Agent) drainSteering() []session.MessageEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	drained := a.steering
	a.steering = nil
	return drained
}

func (a *Agent) peekSteering() []session.MessageEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.steering
}

func (a *Agent) toolSchemas() []model.ToolSchema {
	if a.tools == nil {
		return nil
	}
	var schemas []model.ToolSchema
	for _, t := range a.tools.List() {
		schemas = append(schemas, model.ToolSchema{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	return schemas
}

func toolCallsOf(msg session.MessageEntry) []session.ToolUseContent {
	var calls []session.ToolUseContent
	for _, c := range msg.Content {
		if c.Type == session.ContentTypeToolUse && c.ToolUse != nil {
			calls = append(calls, *c.ToolUse)
		}
	}
	return calls
}

func appendTextDelta(msg *session.MessageEntry, delta string) {
	if n := len(msg.Content); n > 0 && msg.Content[n-1].Type == session.ContentTypeText {
		msg.Content[n-1].Text.Content += delta
		return
	}
	msg.Content = append(msg.Content, session.Content{Type: session.ContentTypeText, Text: &session.TextContent{Content: delta}})
}

func appendThinkingDelta(msg *session.MessageEntry, delta string, signature []byte) {
	if n := len(msg.Content); n > 0 && msg.Content[n-1].Type == session.ContentTypeThinking {
		msg.Content[n-1].Thinking.Content += delta
		if len(signature) > 0 {
			msg.Content[n-1].Thinking.Signature = signature
		}
		return
	}
	msg.Content = append(msg.Content, session.Content{Type: session.ContentTypeThinking, Thinking: &session.ThinkingContent{Content: delta, Signature: signature}})
}
