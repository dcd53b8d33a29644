// Package tokens implements the conservative token-count heuristic used to
// decide when to compact a session and to size the "keep recent" window.
// It never consults a model-specific tokenizer.
package tokens

import "github.com/mariozechner/coding-agent/session/pkg/session"

const (
	messageOverhead  = 4
	toolCallOverhead = 4
)

// EstimateMessage returns a conservative token estimate for one message:
// ceil(byteLength(text) / 4), plus a fixed per-message overhead, plus extra
// overhead per tool-use/tool-result part to cover structural framing.
func EstimateMessage(m session.MessageEntry) int {
	total := messageOverhead
	for _, c := range m.Content {
		switch c.Type {
		case session.ContentTypeText:
			if c.Text != nil {
				total += ceilDiv4(len(c.Text.Content))
			}
		case session.ContentTypeThinking:
			if c.Thinking != nil {
				total += ceilDiv4(len(c.Thinking.Content))
			}
		case session.ContentTypeToolUse:
			total += toolCallOverhead
			if c.ToolUse != nil {
				total += ceilDiv4(len(c.ToolUse.Name))
				for k, v := range c.ToolUse.Input {
					total += ceilDiv4(len(k))
					if s, ok := v.(string); ok {
						total += ceilDiv4(len(s))
					}
				}
			}
		case session.ContentTypeToolResult:
			total += toolCallOverhead
			if c.ToolResult != nil {
				total += ceilDiv4(len(c.ToolResult.Content))
			}
		case session.ContentTypeImage:
			// Images are charged a flat overhead; exact byte accounting of
			// base64 payloads is not worth the cost for a heuristic whose
			// contract is to overestimate, not to be exact.
			total += 256
		}
	}
	return total
}

// EstimateContext sums EstimateMessage over an ordered list of messages.
func EstimateContext(messages []session.MessageEntry) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessage(m)
	}
	return total
}

func ceilDiv4(byteLen int) int {
	return (byteLen + 3) / 4
}
