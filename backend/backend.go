// Package backend defines the streaming chat operation consumed by the
// exchange orchestrator and the events it produces.
//
// A Client reports progress on an event channel. For one call the order is:
// ControllerReady at most once and before any Update, then zero or more
// Update events, then exactly one of Finished or Failed.
package backend

import (
	"context"
	"errors"

	"github.com/tailored-agentic-units/exchange/controller"
	"github.com/tailored-agentic-units/exchange/core/config"
	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// Sentinel errors for backend clients.
var (
	ErrAborted         = errors.New("the request was aborted")
	ErrUnknownProvider = errors.New("unknown backend provider")
	ErrNoAPIKey        = errors.New("backend API key is not set")
)

// Request is one streaming chat call.
type Request struct {
	// Content is the new user turn as sent to the model.
	Content string
	// History is the assembled context: bot prompts followed by the active
	// conversation window.
	History []protocol.Message
	// Config holds the merged model parameters.
	Config config.ModelConfig
	// UserMessage is the stored form of the new turn. Clients return it in
	// Finished ahead of the reply.
	UserMessage protocol.Message
}

// Client performs a streaming chat call. Chat sends events on the channel
// and returns once a terminal event has been sent. A returned error without a
// terminal event is treated by callers as a failure of the call.
type Client interface {
	Chat(ctx context.Context, req Request, events chan<- Event) error
}

// Event is one step of a streaming chat call.
type Event interface {
	event()
}

// Update carries the accumulated response text so far.
type Update struct {
	Content string
}

// Finished carries the messages produced by a completed call.
type Finished struct {
	Messages []protocol.Message
}

// Failed carries the error that ended a call, including aborts.
type Failed struct {
	Err error
}

// ControllerReady carries the handle that stops the call.
type ControllerReady struct {
	Handle controller.Handle
}

func (Update) event()          {}
func (Finished) event()        {}
func (Failed) event()          {}
func (ControllerReady) event() {}

// Abortable derives a context that Handle.Abort cancels with ErrAborted as
// its cause. Call release when the call ends to free the context.
func Abortable(ctx context.Context) (context.Context, controller.Handle, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	handle := controller.AbortFunc(func() { cancel(ErrAborted) })
	return ctx, handle, func() { cancel(nil) }
}

// Cause returns the reason ctx ended, preferring ErrAborted over the generic
// context error.
func Cause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

// Reply builds the Finished messages for a call: the stored user turn
// followed by the assistant reply linked to it.
func Reply(req Request, content string) Finished {
	return Finished{Messages: []protocol.Message{
		req.UserMessage,
		{
			Role:    protocol.RoleAssistant,
			Content: content,
			ReplyTo: req.UserMessage.ID,
			Model:   req.Config.Model,
		},
	}}
}
