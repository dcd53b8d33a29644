// Package session implements the append-only, content-addressed DAG of
// conversation entries described by the agent's session log: messages,
// model changes, compactions, and branch summaries, rooted at a header and
// addressed by a current leaf pointer.
package session

import (
	"time"
)

// EntryType identifies the kind of record stored in a session log.
type EntryType string

const (
	TypeSession       EntryType = "session"
	TypeMessage       EntryType = "message"
	TypeModelChange   EntryType = "model_change"
	TypeThinkingLevel EntryType = "thinking_level"
	TypeCompaction    EntryType = "compaction"
	TypeBranchSummary EntryType = "branch_summary"
)

// MessageRole identifies the sender of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// StopReason explains why an assistant turn ended.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "toolUse"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// Header is the first line of every session file.
type Header struct {
	Type          EntryType `json:"type"` // always TypeSession
	ID            string    `json:"id"`
	Version       int       `json:"version"`
	ParentSession string    `json:"parent_session,omitempty"`
	Cwd           string    `json:"cwd,omitempty"`
	CreatedAt     time.Time `json:"timestamp"`
}

// Entry is the tagged union stored in the DAG. Exactly one of the payload
// pointers is non-nil, selected by Type.
type Entry struct {
	Type      EntryType `json:"type"`
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id"` // nil for the root entry
	Timestamp time.Time `json:"timestamp"`

	Message       *MessageEntry       `json:"message,omitempty"`
	ModelChange   *ModelChangeEntry   `json:"model_change,omitempty"`
	ThinkingLevel *ThinkingLevelEntry `json:"thinking_level,omitempty"`
	Compaction    *CompactionEntry    `json:"compaction,omitempty"`
	BranchSummary *BranchSummaryEntry `json:"branch_summary,omitempty"`
}

// Usage is an accumulated token/cost ledger for one assistant turn.
type Usage struct {
	InputTokens      int     `json:"input_tokens,omitempty"`
	OutputTokens     int     `json:"output_tokens,omitempty"`
	CacheReadTokens  int     `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int     `json:"cache_write_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// MessageEntry is a conversation message: the user/assistant/tool variant
// of spec.md's Message entity. Role selects which fields are meaningful:
// assistant messages may carry attribution, usage, and a stop reason; tool
// messages carry one or more ToolResultContent parts.
type MessageEntry struct {
	Role    MessageRole `json:"role"`
	Content []Content   `json:"content"`

	// Assistant-only attribution and bookkeeping.
	Provider   string     `json:"provider,omitempty"`
	Model      string     `json:"model,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ModelChangeEntry records a mid-session switch of model/provider.
type ModelChangeEntry struct {
	Provider string `json:"provider"`
	ModelID  string `json:"model_id"`
}

// ThinkingLevelEntry records a change in the agent's reasoning-effort level.
type ThinkingLevelEntry struct {
	ThinkingLevel string `json:"thinking_level"`
}

// ReadWriteFiles records the file operations observed in a summarized
// region of the log, used to seed the next compaction's FileOperations set.
type ReadWriteFiles struct {
	ReadFiles     []string `json:"readFiles,omitempty"`
	ModifiedFiles []string `json:"modifiedFiles,omitempty"`
}

// CompactionEntry replaces a prefix of the branch with a generated summary.
// FirstKeptEntryID must reference an ancestor of this entry's parent on the
// same branch (invariant 5 in spec.md §3); entries strictly before it are
// dropped from replay.
type CompactionEntry struct {
	Summary          string          `json:"summary"`
	FirstKeptEntryID string          `json:"first_kept_entry_id"`
	TokensBefore     int             `json:"tokens_before"`
	Details          *ReadWriteFiles `json:"details,omitempty"`
}

// BranchSummaryEntry checkpoints an abandoned path when the leaf moves away
// from it via BranchWithSummary.
type BranchSummaryEntry struct {
	Summary string          `json:"summary"`
	FromID  string          `json:"from_id"`
	Details *ReadWriteFiles `json:"details,omitempty"`
}

// ContentType identifies the kind of a message Content part.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeImage      ContentType = "image"
	ContentTypeThinking   ContentType = "thinking"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Content is one part of a message's ordered content sequence.
type Content struct {
	Type ContentType `json:"type"`

	Text       *TextContent       `json:"text,omitempty"`
	Image      *ImageContent      `json:"image,omitempty"`
	Thinking   *ThinkingContent   `json:"thinking,omitempty"`
	ToolUse    *ToolUseContent    `json:"tool_use,omitempty"`
	ToolResult *ToolResultContent `json:"tool_result,omitempty"`
}

// TextContent is a literal text block.
type TextContent struct {
	Content string `json:"content"`
}

// ThinkingContent is a reasoning block: visible text plus an opaque
// signature that must be round-tripped back to the model verbatim.
type ThinkingContent struct {
	Content   string `json:"content"`
	Signature []byte `json:"signature,omitempty"`
}

// ImageContent is an inline image, either base64-encoded or a URL.
type ImageContent struct {
	Source *ImageSource `json:"source"`
}

// ImageSource is the origin of image data.
type ImageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ToolUseContent is a model-requested tool call.
type ToolUseContent struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Input            map[string]any `json:"input"`
	ThoughtSignature []byte         `json:"thought_signature,omitempty"`
}

// ToolResultContent is the outcome of executing a tool call.
type ToolResultContent struct {
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name,omitempty"`
	IsError   bool   `json:"is_error"`
	Content   string `json:"content"`
	// Image is set for tools that return structured output including an
	// image (e.g. `read` on an image file).
	Image *ImageContent `json:"image,omitempty"`
}

// SessionInfo is lightweight metadata about a session file, as returned by
// Manager.ListSessions and the session catalog.
type SessionInfo struct {
	ID           string
	Path         string
	Name         string
	Status       string
	Cwd          string
	Created      time.Time
	Modified     time.Time
	MessageCount int
}

const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// CompactionSettings controls whether and when automatic compaction fires.
type CompactionSettings struct {
	Enabled          bool
	ReserveTokens    int // default 16384
	KeepRecentTokens int // default 20000
}

// DefaultCompactionSettings returns the spec-mandated defaults.
func DefaultCompactionSettings() CompactionSettings {
	return CompactionSettings{
		Enabled:          true,
		ReserveTokens:    16384,
		KeepRecentTokens: 20000,
	}
}
