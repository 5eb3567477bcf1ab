// Package session holds the mutable conversation state observed by a UI and
// mutated by the exchange orchestrator.
package session

import (
	"errors"

	"github.com/tailored-agentic-units/exchange/bot"
	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// Sentinel errors for session operations.
var (
	ErrInvalidClearIndex = errors.New("clear context index out of range")
	ErrUnknownBackend    = errors.New("unknown session backend")
)

// Session holds an ordered sequence of conversation messages bound to a bot.
// Implementations must be safe for concurrent use.
type Session interface {
	// ID returns the unique session identifier.
	ID() string
	// Bot returns the bot configuration bound to the session.
	Bot() bot.Bot
	// Messages returns a fresh snapshot of the conversation history.
	Messages() []protocol.Message
	// Message returns a copy of the message with the given id.
	Message(id string) (protocol.Message, bool)
	// Index returns the position of the message with the given id, or -1.
	Index(id string) int
	// ClearContextIndex returns the index where active context begins, if set.
	ClearContextIndex() (int, bool)
	// SetClearContextIndex marks where active context begins.
	SetClearContextIndex(index int) error
	// ClearContext excludes every current message from future context.
	ClearContext()
	// Append adds messages to the end of the history in one reassignment.
	Append(msgs ...protocol.Message)
	// Splice removes n messages starting at the message with the given id
	// and inserts msgs in their place. Reports whether the id was found.
	Splice(id string, n int, msgs ...protocol.Message) bool
	// SpliceAt is Splice anchored at a position. Reports false when index is
	// out of range.
	SpliceAt(index, n int, msgs ...protocol.Message) bool
	// Update mutates the message with the given id in place. Reports whether
	// the message was found.
	Update(id string, fn func(*protocol.Message)) bool
	// UpdateAt mutates the message at index in place. Reports false when
	// index is out of range.
	UpdateAt(index int, fn func(*protocol.Message)) bool
	// Clear resets the conversation history and the clear-context index.
	Clear()
}
