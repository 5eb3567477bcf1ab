// Package message builds normalized conversation records from raw inputs.
package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// IDFunc produces a fresh unique identifier on each call.
type IDFunc func() string

// NewID returns a UUIDv7 string.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a Factory.
type Option func(*Factory)

// WithIDFunc overrides the identifier generator.
func WithIDFunc(fn IDFunc) Option {
	return func(f *Factory) { f.newID = fn }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

// Factory creates messages with generated identity and timestamps.
type Factory struct {
	newID IDFunc
	now   func() time.Time
}

// NewFactory creates a Factory backed by UUIDv7 ids and the wall clock.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		newID: NewID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a user message with a fresh id and the current time, then
// applies every non-zero field of overrides on top.
func (f *Factory) Create(overrides protocol.Message) protocol.Message {
	msg := protocol.Message{
		ID:   f.newID(),
		Role: protocol.RoleUser,
		Date: f.now(),
	}

	if overrides.ID != "" {
		msg.ID = overrides.ID
	}
	if overrides.Role != "" {
		msg.Role = overrides.Role
	}
	if !overrides.Date.IsZero() {
		msg.Date = overrides.Date
	}
	if overrides.URLDetail != nil {
		detail := *overrides.URLDetail
		msg.URLDetail = &detail
	}
	msg.Content = overrides.Content
	msg.Streaming = overrides.Streaming
	msg.IsError = overrides.IsError
	msg.ReplyTo = overrides.ReplyTo
	msg.Model = overrides.Model

	return msg
}

// ErrorExchange builds the message pair recorded when user input cannot be
// turned into a request. The user message keeps the raw content. The bot
// message carries the error as indented JSON and points back at the user
// message through ReplyTo.
func (f *Factory) ErrorExchange(userContent string, err error) (user, bot protocol.Message) {
	user = f.Create(protocol.Message{
		Role:    protocol.RoleUser,
		Content: userContent,
	})
	bot = f.Create(protocol.Message{
		Role:    protocol.RoleAssistant,
		Content: FormatError(err),
		IsError: true,
		ReplyTo: user.ID,
	})
	return user, bot
}

type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// FormatError renders err as a pretty-printed {"error": true, "message": ...}
// object.
func FormatError(err error) string {
	body := errorBody{Error: true}
	if err != nil {
		body.Message = err.Error()
	}
	data, _ := json.MarshalIndent(body, "", "  ")
	return string(data)
}
