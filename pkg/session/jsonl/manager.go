package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mariozechner/coding-agent/session/pkg/session"
)

// Manager implements session.Manager over a directory of JSONL session
// files, with an index.json catalog for fast listing.
type Manager struct {
	rootDir   string
	sessDir   string
	eventChan chan string
	mu        sync.RWMutex
	subs      []chan string
}

func NewManager(rootDir string) *Manager {
	m := &Manager{
		rootDir:   rootDir,
		sessDir:   filepath.Join(rootDir, "sessions"),
		eventChan: make(chan string, 100),
	}
	os.MkdirAll(m.sessDir, 0755)

	go m.broadcastLoop()
	return m
}

// Index is the on-disk catalog of known sessions, kept best-effort in sync
// on every write. It is not the source of truth: the *.jsonl files are. A
// missing or corrupt index.json can always be rebuilt by rescanning sessDir.
type Index struct {
	Sessions []SessionMeta `json:"sessions"`
}

type SessionMeta struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Status   string    `json:"status"`
	Cwd      string    `json:"cwd,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

func (m *Manager) SetSessionStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexPath := filepath.Join(m.sessDir, "index.json")
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return err
	}

	found := false
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == id {
			idx.Sessions[i].Status = status
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("session %s not found", id)
	}

	updatedData, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(indexPath, updatedData, 0644)
}

func (m *Manager) updateIndex(meta SessionMeta) error {
	indexPath := filepath.Join(m.sessDir, "index.json")

	var idx Index
	data, err := os.ReadFile(indexPath)
	if err == nil {
		json.Unmarshal(data, &idx)
	}

	found := false
	for i, s := range idx.Sessions {
		if s.ID == meta.ID {
			idx.Sessions[i] = meta
			found = true
			break
		}
	}
	if !found {
		idx.Sessions = append(idx.Sessions, meta)
	}

	updatedData, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(indexPath, updatedData, 0644)
}

func (m *Manager) readIndex() ([]SessionMeta, error) {
	indexPath := filepath.Join(m.sessDir, "index.json")
	data, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		return []SessionMeta{}, nil
	}
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return idx.Sessions, nil
}

func (m *Manager) broadcastLoop() {
	for id := range m.eventChan {
		m.mu.RLock()
		for _, sub := range m.subs {
			select {
			case sub <- id:
			default:
			}
		}
		m.mu.RUnlock()
	}
}

func (m *Manager) Subscribe() <-chan string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan string, 10)
	m.subs = append(m.subs, ch)
	return ch
}

func (m *Manager) publish(id string) {
	m.mu.Lock()
	if metas, err := m.readIndex(); err == nil {
		for _, meta := range metas {
			if meta.ID == id {
				meta.Modified = time.Now()
				if err := m.updateIndex(meta); err != nil {
					slog.Error("failed to update session index", "error", err)
				}
				break
			}
		}
	}
	m.mu.Unlock()

	select {
	case m.eventChan <- id:
	default:
	}
}

// NewSession creates a new session file rooted at a fresh header. When
// parentSessionID is set, it is recorded on the header but the new
// session starts with an empty DAG; use ForkFrom to copy the parent's
// entries too.
func (m *Manager) NewSession(parentSessionID string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.sessDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(m.sessDir, id+".jsonl")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create session file: %w", err)
	}

	s := &Session{
		id:         id,
		filePath:   path,
		entries:    make(map[string]session.Entry),
		fileHandle: f,
		notify:     m.publish,
	}

	cwd, _ := os.Getwd()
	now := time.Now()
	header := session.Header{
		Type:          session.TypeSession,
		ID:            id,
		Version:       1,
		ParentSession: parentSessionID,
		Cwd:           cwd,
		CreatedAt:     now,
	}
	s.header = header

	if err := s.writeLine(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write session header: %w", err)
	}

	meta := SessionMeta{
		ID:       id,
		Path:     path,
		Status:   session.SessionStatusActive,
		Cwd:      cwd,
		Created:  now,
		Modified: now,
	}
	if err := m.updateIndex(meta); err != nil {
		slog.Error("failed to update session index", "error", err)
	}

	return s, nil
}

func (m *Manager) LoadSession(id string) (session.Session, error) {
	path := filepath.Join(m.sessDir, id+".jsonl")
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}

	s := &Session{
		filePath:   path,
		entries:    make(map[string]session.Entry),
		fileHandle: f,
		notify:     m.publish,
	}

	if err := m.loadEntries(s); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	return s, nil
}

func (m *Manager) ContinueRecent() (session.Session, error) {
	infos, err := m.ListSessions()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no sessions found in %s", m.sessDir)
	}
	return m.LoadSession(infos[0].ID)
}

func (m *Manager) ForkFrom(id string) (session.Session, error) {
	source, err := m.LoadSession(id)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	jsonlSource := source.(*Session)

	dest, err := m.NewSession(source.ID())
	if err != nil {
		return nil, err
	}

	if _, err := jsonlSource.fileHandle.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(jsonlSource.fileHandle)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	scanner.Scan() // skip header

	for scanner.Scan() {
		var e session.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if err := dest.Append(e); err != nil {
			dest.Close()
			return nil, err
		}
	}

	return dest, nil
}

func (m *Manager) ListSessions() ([]session.SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metas, err := m.readIndex()
	if err != nil {
		return nil, err
	}

	var infos []session.SessionInfo
	for _, meta := range metas {
		infos = append(infos, session.SessionInfo{
			ID:       meta.ID,
			Path:     meta.Path,
			Status:   meta.Status,
			Cwd:      meta.Cwd,
			Created:  meta.Created,
			Modified: meta.Modified,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Modified.After(infos[j].Modified)
	})

	return infos, nil
}

func (m *Manager) loadEntries(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fileHandle.Seek(0, io.SeekStart); err != nil {
		return err
	}

	scanner := bufio.NewScanner(s.fileHandle)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var lastID string

	if scanner.Scan() {
		var h session.Header
		if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
			return fmt.Errorf("failed to unmarshal header: %w", err)
		}
		s.id = h.ID
		s.header = h
	}

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

	s.leafID = lastID
	return nil
}
