// Package tool defines the Tool contract the agent loop dispatches against
// and a Registry for looking tools up by name, with JSON-Schema validation
// of call arguments before execute runs.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Result is what a tool execution returns to the agent loop: text and/or
// an image, plus opaque structured details for callers that want them.
type Result struct {
	Text    string
	Image   *ImageResult
	Details any
}

// ImageResult is an inline image a tool returns (e.g. read() on a .png).
type ImageResult struct {
	MediaType string
	Data      string // base64
}

// ExecuteOpts carries per-call context the agent loop supplies.
type ExecuteOpts struct {
	ToolCallID string
	OnPartial  func(text string)
}

// Tool is one callable capability offered to the model.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input map[string]any, opts ExecuteOpts) (Result, error)
}

// Registry looks tools up by name and validates call arguments against each
// tool's InputSchema before execute runs.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its InputSchema once up front so
// malformed schemas fail fast rather than on first call.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	compiled, err := compileSchema(t.Name(), t.InputSchema())
	if err != nil {
		return fmt.Errorf("register tool %s: %w", t.Name(), err)
	}

	r.tools[t.Name()] = t
	r.schemas[t.Name()] = compiled
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []Tool
	for _, t := range r.tools {
		list = append(list, t)
	}
	return list
}

// Validate checks input against the registered tool's JSON Schema.
func (r *Registry) Validate(name string, input map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	return schema.Validate(input)
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".schema.json", bytesReader(data)); err != nil {
		return nil, err
	}
	return c.Compile(name + ".schema.json")
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
