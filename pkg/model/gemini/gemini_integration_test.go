package gemini_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mariozechner/coding-agent/session/pkg/model"
	"github.com/mariozechner/coding-agent/session/pkg/model/gemini"
	"github.com/mariozechner/coding-agent/session/pkg/session"
)

func TestIntegration_Gemini(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("skipping Gemini integration test: GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := gemini.New(ctx, apiKey)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	req := model.Request{
		Model: "models/gemini-2.0-flash",
		Messages: []session.MessageEntry{
			{Role: session.RoleUser, Content: []session.Content{
				{Type: session.ContentTypeText, Text: &session.TextContent{Content: "say hi"}},
			}},
		},
	}

	resp, err := m.Generate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) == 0 {
		t.Fatal("expected at least one message in response")
	}
}
