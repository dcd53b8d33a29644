package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mariozechner/coding-agent/session/pkg/session"
)

// Session implements session.Session using one append-only JSONL file per
// conversation. Entries are kept fully in memory for fast replay; the file
// is the durable record.
type Session struct {
	mu         sync.RWMutex
	id         string
	filePath   string
	entries    map[string]session.Entry // ID -> Entry
	leafID     string                   // current tip of the DAG
	fileHandle *os.File
	notify     func(string)
	header     session.Header
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Path() string   { return s.filePath }
func (s *Session) LeafID() string { return s.leafID }

func (s *Session) Header() session.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header
}

// Append persists a generic entry as a child of the current leaf and
// advances the leaf pointer.
func (s *Session) Append(e session.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ParentID == nil && s.leafID != "" {
		pid := s.leafID
		e.ParentID = &pid
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if err := s.writeLine(e); err != nil {
		return err
	}

	s.entries[e.ID] = e
	s.leafID = e.ID

	if s.notify != nil {
		s.notify(s.id)
	}

	return nil
}

func (s *Session) AppendMessage(role session.MessageRole, content []session.Content) (string, error) {
	id := uuid.New().String()
	e := session.Entry{
		Type: session.TypeMessage,
		ID:   id,
		Message: &session.MessageEntry{
			Role:    role,
			Content: content,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Session) AppendThinkingLevelChange(level string) (string, error) {
	id := uuid.New().String()
	e := session.Entry{
		Type: session.TypeThinkingLevel,
		ID:   id,
		ThinkingLevel: &session.ThinkingLevelEntry{
			ThinkingLevel: level,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Session) AppendModelChange(provider, modelID string) (string, error) {
	id := uuid.New().String()
	e := session.Entry{
		Type: session.TypeModelChange,
		ID:   id,
		ModelChange: &session.ModelChangeEntry{
			Provider: provider,
			ModelID:  modelID,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

// AppendCompaction records a summary that replaces everything before
// firstKeptID on the branch. The entry's Details is always nil: no
// file-operation details are recorded, so a later compaction has none to
// seed its file tracking from.
func (s *Session) AppendCompaction(summary, firstKeptID string, tokens int) (string, error) {
	return s.appendCompactionWithDetails(summary, firstKeptID, tokens, nil)
}

func (s *Session) appendCompactionWithDetails(summary, firstKeptID string, tokens int, details *session.ReadWriteFiles) (string, error) {
	id := uuid.New().String()
	e := session.Entry{
		Type: session.TypeCompaction,
		ID:   id,
		Compaction: &session.CompactionEntry{
			Summary:          summary,
			FirstKeptEntryID: firstKeptID,
			TokensBefore:     tokens,
			Details:          details,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Session) Branch(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entryID]; !ok && entryID != "" {
		return fmt.Errorf("entry not found: %s", entryID)
	}

	s.leafID = entryID
	return nil
}

func (s *Session) BranchWithSummary(branchFromID string, summary string) (string, error) {
	if err := s.Branch(branchFromID); err != nil {
		return "", err
	}

	id := uuid.New().String()
	e := session.Entry{
		Type: session.TypeBranchSummary,
		ID:   id,
		BranchSummary: &session.BranchSummaryEntry{
			Summary: summary,
			FromID:  branchFromID,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

// GetContext returns the resolved linear history from the current leaf back
// to the root: the full path, trimmed at the latest compaction entry (the
// compaction entry itself is kept, everything strictly before firstKeptID
// is dropped). This is the entry-level view used for branching and display;
// session.BuildSessionContext builds the message-level view the agent loop
// consumes (synthetic summaries, model resolution).
func (s *Session) GetContext() ([]session.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fullPath []session.Entry
	currID := s.leafID

	for currID != "" {
		e, ok := s.entries[currID]
		if !ok {
			return nil, fmt.Errorf("broken parent link: %s", currID)
		}
		fullPath = append([]session.Entry{e}, fullPath...)

		if e.ParentID == nil {
			break
		}
		currID = *e.ParentID
	}

	var mostRecentCompaction *session.CompactionEntry
	compactionIndex := -1

	for i := len(fullPath) - 1; i >= 0; i-- {
		if fullPath[i].Type == session.TypeCompaction {
			mostRecentCompaction = fullPath[i].Compaction
			compactionIndex = i
			break
		}
	}

	if mostRecentCompaction == nil {
		return fullPath, nil
	}

	resolved := []session.Entry{fullPath[compactionIndex]}
	firstKeptID := mostRecentCompaction.FirstKeptEntryID
	include := false
	for _, e := range fullPath {
		if e.ID == firstKeptID {
			include = true
		}
		if include && e.Type != session.TypeCompaction {
			resolved = append(resolved, e)
		}
	}

	return resolved, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fileHandle != nil {
		return s.fileHandle.Close()
	}
	return nil
}

func (s *Session) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.fileHandle.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Refresh reloads entry state from disk, picking up appends made by other
// processes sharing the same session file.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fileHandle.Seek(0, 0); err != nil {
		return err
	}

	scanner := bufio.NewScanner(s.fileHandle)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if scanner.Scan() {
		var h session.Header
		if err := json.Unmarshal(scanner.Bytes(), &h); err == nil {
			s.header = h
		}
	}

	var lastID string
	for scanner.Scan() {
		var e session.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		s.entries[e.ID] = e
		lastID = e.ID
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	if lastID != "" {
		s.leafID = lastID
	}

	if _, err := s.fileHandle.Seek(0, 2); err != nil {
		return err
	}

	return nil
}
