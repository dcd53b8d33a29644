package session

import "fmt"

// ModelRef identifies a provider/model pair active at a point in the log.
type ModelRef struct {
	Provider string
	ModelID  string
}

// BuildSessionContext replays a branch's entries (oldest first, as returned
// by Session.GetContext) into the linear message view the agent loop and
// system-prompt builder consume:
//
//  1. Find the latest compaction entry. If present, drop every entry
//     strictly before its FirstKeptEntryID and prepend a synthetic user
//     message summarizing what was dropped.
//  2. Replace each branch_summary entry in place with a synthetic user
//     message.
//  3. Drop model_change entries from the message list; the latest one on
//     the branch sets the returned model.
//  4. Emit only message-typed entries (including the synthetic ones),
//     preserving order.
func BuildSessionContext(entries []Entry) (messages []MessageEntry, model *ModelRef) {
	compactFrom := 0
	for i, e := range entries {
		if e.Type == TypeCompaction {
			firstKeptID := e.Compaction.FirstKeptEntryID
			cut := -1
			for j := i + 1; j < len(entries); j++ {
				if entries[j].ID == firstKeptID {
					cut = j
					break
				}
			}
			if cut >= 0 {
				compactFrom = cut
				messages = append(messages, MessageEntry{
					Role: RoleUser,
					Content: []Content{{
						Type: ContentTypeText,
						Text: &TextContent{Content: fmt.Sprintf(
							`<summary type="compaction" tokens_before="%d">%s</summary>`,
							e.Compaction.TokensBefore, e.Compaction.Summary,
						)},
					}},
				})
			}
		}
	}

	for i := compactFrom; i < len(entries); i++ {
		e := entries[i]
		switch e.Type {
		case TypeMessage:
			messages = append(messages, *e.Message)
		case TypeBranchSummary:
			messages = append(messages, MessageEntry{
				Role: RoleUser,
				Content: []Content{{
					Type: ContentTypeText,
					Text: &TextContent{Content: fmt.Sprintf(
						`<summary type="branch">%s</summary>`, e.BranchSummary.Summary,
					)},
				}},
			})
		case TypeModelChange:
			model = &ModelRef{Provider: e.ModelChange.Provider, ModelID: e.ModelChange.ModelID}
		}
	}

	return messages, model
}
