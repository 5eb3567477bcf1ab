// Package mock provides a scripted backend.Client for tests.
package mock

import (
	"context"
	"sync"

	"github.com/tailored-agentic-units/exchange/backend"
	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// Option configures a Client.
type Option func(*Client)

// WithUpdates streams the given partial contents before the terminal event.
func WithUpdates(updates ...string) Option {
	return func(c *Client) { c.updates = updates }
}

// WithFinish ends the call with the given messages instead of the default
// user/assistant reply pair.
func WithFinish(msgs ...protocol.Message) Option {
	return func(c *Client) { c.finish = msgs }
}

// WithFailure ends the call with a Failed event carrying err.
func WithFailure(err error) Option {
	return func(c *Client) { c.failure = err }
}

// WithWaitForAbort blocks after the updates until the call is aborted or its
// context ends, then reports the cause as Failed.
func WithWaitForAbort() Option {
	return func(c *Client) { c.waitAbort = true }
}

// WithoutTerminal returns err from Chat without sending a terminal event.
func WithoutTerminal(err error) Option {
	return func(c *Client) {
		c.noTerminal = true
		c.returnErr = err
	}
}

// WithoutController skips the ControllerReady event.
func WithoutController() Option {
	return func(c *Client) { c.noController = true }
}

// WithTrailingEvents sends extra events after the terminal event.
func WithTrailingEvents(events ...backend.Event) Option {
	return func(c *Client) { c.trailing = events }
}

// Client replays a fixed script of backend events and records every request.
type Client struct {
	updates      []string
	finish       []protocol.Message
	failure      error
	waitAbort    bool
	noTerminal   bool
	noController bool
	returnErr    error
	trailing     []backend.Event

	started  chan struct{}
	once     sync.Once
	mu       sync.Mutex
	requests []backend.Request
}

// New creates a Client. Without options it finishes immediately with the
// user message and an empty reply.
func New(opts ...Option) *Client {
	c := &Client{started: make(chan struct{})}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Started is closed once the first call has registered its controller.
func (c *Client) Started() <-chan struct{} {
	return c.started
}

// Requests returns every request received so far.
func (c *Client) Requests() []backend.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.Request(nil), c.requests...)
}

func (c *Client) Chat(ctx context.Context, req backend.Request, events chan<- backend.Event) error {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	ctx, handle, release := backend.Abortable(ctx)
	defer release()

	if !c.noController {
		events <- backend.ControllerReady{Handle: handle}
	}
	c.once.Do(func() { close(c.started) })

	for _, u := range c.updates {
		events <- backend.Update{Content: u}
	}

	switch {
	case c.waitAbort:
		<-ctx.Done()
		events <- backend.Failed{Err: backend.Cause(ctx)}
	case c.noTerminal:
		return c.returnErr
	case c.failure != nil:
		events <- backend.Failed{Err: c.failure}
	case c.finish != nil:
		events <- backend.Finished{Messages: c.finish}
	default:
		last := ""
		if len(c.updates) > 0 {
			last = c.updates[len(c.updates)-1]
		}
		events <- backend.Reply(req, last)
	}

	for _, ev := range c.trailing {
		events <- ev
	}
	return c.returnErr
}
