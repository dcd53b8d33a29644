// Package model defines the provider-agnostic contract the agent loop
// drives: a streaming sequence of Parts plus a resolved final response.
package model

import (
	"context"

	"github.com/mariozechner/coding-agent/session/pkg/session"
)

// PartType identifies the kind of a streamed Part. The agent loop acts on
// TextDelta, ReasoningDelta, ToolCall, StepFinish, and Error, and ends the
// step early on Finish; ToolResult is accepted for completeness and
// ignored. Finish is not required from every provider.
type PartType string

const (
	PartTextDelta      PartType = "text-delta"
	PartReasoningDelta PartType = "reasoning-delta"
	PartToolCall       PartType = "tool-call"
	PartToolResult     PartType = "tool-result"
	PartStepFinish     PartType = "step-finish"
	PartError          PartType = "error"
	PartFinish         PartType = "finish"
)

// Part is one streamed unit of model output.
type Part struct {
	Type PartType

	// TextDelta / ReasoningDelta
	Delta string
	// ReasoningDelta signature, forwarded opaquely back to the provider.
	Signature []byte

	// ToolCall
	ToolCallID   string
	ToolName     string
	ToolArgs     map[string]any

	// StepFinish
	Usage      *session.Usage
	StopReason session.StopReason

	// Error
	Err error
}

// Response is the resolved result of a model call: the messages produced
// (normally exactly one assistant message) plus finish metadata.
type Response struct {
	Messages   []session.MessageEntry
	StopReason session.StopReason
	Usage      session.Usage
}

// Request is everything a Model needs to produce one assistant turn.
type Request struct {
	Model           string
	Instructions    string
	Messages        []session.MessageEntry
	Tools           []ToolSchema
	MaxOutputTokens int // 0 means provider default
}

// ToolSchema is the structural description of a tool offered to the model,
// sufficient to render as JSON Schema for the provider's function-calling
// API.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Stream is the live, part-by-part view of one in-flight model call.
type Stream interface {
	// Next returns the next Part, or io.EOF-equivalent via ok=false once the
	// stream is exhausted (after a Finish or StepFinish part for the final
	// step).
	Next(ctx context.Context) (Part, bool, error)
	// Response returns the result aggregated from the parts Next has
	// returned so far; it does not drain the stream itself, so callers
	// drain Next first to get the complete result.
	Response() (Response, error)
	Close() error
}

// Model is the provider-agnostic contract. Stream is the primary entry
// point the agent loop uses; Generate is the non-streaming equivalent used
// by the compaction engine, which only needs a final summary string.
type Model interface {
	Name() string
	List(ctx context.Context) ([]string, error)
	Stream(ctx context.Context, req Request) (Stream, error)
	Generate(ctx context.Context, req Request) (Response, error)
}
