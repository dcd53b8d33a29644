package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mariozechner/coding-agent/session/pkg/session"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUpsertAndGet(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	info := session.SessionInfo{
		ID: "s1", Path: "/tmp/s1.jsonl", Name: "first", Status: session.SessionStatusActive,
		Cwd: "/work", Created: now, Modified: now,
	}
	if err := c.Upsert(ctx, info); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := c.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Path != info.Path || got.Cwd != info.Cwd {
		t.Fatalf("unexpected catalog row: %+v", got)
	}
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	now := time.Now()
	info := session.SessionInfo{ID: "s1", Path: "/tmp/s1.jsonl", Status: session.SessionStatusActive, Created: now, Modified: now}
	if err := c.Upsert(ctx, info); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	info.Status = session.SessionStatusEnded
	info.MessageCount = 5
	info.Modified = now.Add(time.Minute)
	if err := c.Upsert(ctx, info); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}

	got, err := c.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != session.SessionStatusEnded || got.MessageCount != 5 {
		t.Fatalf("expected updated row, got %+v", got)
	}

	list, err := c.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected upsert to update in place, got %d rows", len(list))
	}
}

func TestListFiltersByStatusAndOrdersByModified(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	base := time.Now()
	sessions := []session.SessionInfo{
		{ID: "old", Status: session.SessionStatusEnded, Created: base, Modified: base},
		{ID: "new", Status: session.SessionStatusActive, Created: base, Modified: base.Add(time.Hour)},
		{ID: "mid", Status: session.SessionStatusActive, Created: base, Modified: base.Add(30 * time.Minute)},
	}
	for _, s := range sessions {
		if err := c.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert %s: %v", s.ID, err)
		}
	}

	active, err := c.List(ctx, session.SessionStatusActive)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 2 || active[0].ID != "new" || active[1].ID != "mid" {
		t.Fatalf("expected [new, mid] ordered by modified desc, got %+v", active)
	}
}

func TestSetStatusUnknownSessionErrors(t *testing.T) {
	c := newCatalog(t)
	if err := c.SetStatus(context.Background(), "missing", session.SessionStatusEnded); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestIncrementMessageCount(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	now := time.Now()
	if err := c.Upsert(ctx, session.SessionInfo{ID: "s1", Created: now, Modified: now}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.IncrementMessageCount(ctx, "s1", 3); err != nil {
		t.Fatalf("IncrementMessageCount: %v", err)
	}
	if err := c.IncrementMessageCount(ctx, "s1", 2); err != nil {
		t.Fatalf("IncrementMessageCount: %v", err)
	}

	got, err := c.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MessageCount != 5 {
		t.Fatalf("expected message_count 5, got %d", got.MessageCount)
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	now := time.Now()
	if err := c.Upsert(ctx, session.SessionInfo{ID: "s1", Created: now, Modified: now}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "s1"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	c := newCatalog(t)
	ch := c.Subscribe()

	now := time.Now()
	if err := c.Upsert(context.Background(), session.SessionInfo{ID: "s1", Created: now, Modified: now}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	select {
	case id := <-ch:
		if id != "s1" {
			t.Fatalf("expected event for s1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribe event")
	}
}
