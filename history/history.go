// Package history assembles the ordered message list sent to the backend
// for a new turn.
package history

import (
	"github.com/tailored-agentic-units/exchange/bot"
	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// SummaryPrompt prefixes extracted URL or document content so the model
// receives a summary request instead of the raw text.
const SummaryPrompt = "Summarize the following text briefly in 200 words or less:\n\n"

// Build returns the bot's context prompts followed by the active window of
// messages. A clearIndex <= 0 selects every message; an index past the end
// selects none. Outgoing copies never carry transient flags, and URL-sourced
// messages are re-tagged as assistant content.
func Build(b bot.Bot, messages []protocol.Message, clearIndex int) []protocol.Message {
	window := messages
	if clearIndex > 0 {
		window = messages[min(clearIndex, len(messages)):]
	}

	out := make([]protocol.Message, 0, len(b.Context)+len(window))
	out = append(out, b.ContextPrompts()...)

	for _, msg := range window {
		out = append(out, outgoing(msg))
	}
	return out
}

// NewTurn returns the content sent as the new user turn. Messages backed by
// extracted content are wrapped in the summary instruction.
func NewTurn(msg protocol.Message) string {
	if msg.URLDetail != nil {
		return SummaryPrompt + msg.Content
	}
	return msg.Content
}

func outgoing(msg protocol.Message) protocol.Message {
	out := msg.Clone()
	if out.Role == protocol.RoleURL {
		out.Role = protocol.RoleAssistant
	}
	out.Streaming = false
	out.IsError = false
	return out
}
