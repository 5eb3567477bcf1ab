// Package exchange runs one user/assistant exchange against a chat backend:
// it classifies the input, records the message pair in the session, streams
// the reply into the placeholder and splices in the final messages.
//
// The orchestrator initializes from configuration via New, creating all
// subsystems internally. Functional options allow test overrides of any
// subsystem.
//
//	o, err := exchange.New(ctx, &cfg)
//	sess, err := o.NewSession(ctx, "")
//	reply, err := o.Run(ctx, sess, "hello", render, nil)
package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/exchange/backend"
	"github.com/tailored-agentic-units/exchange/bot"
	"github.com/tailored-agentic-units/exchange/controller"
	"github.com/tailored-agentic-units/exchange/core/config"
	"github.com/tailored-agentic-units/exchange/core/protocol"
	"github.com/tailored-agentic-units/exchange/extract"
	"github.com/tailored-agentic-units/exchange/history"
	"github.com/tailored-agentic-units/exchange/message"
	"github.com/tailored-agentic-units/exchange/observability"
	"github.com/tailored-agentic-units/exchange/session"
)

// UpdateFunc receives a fresh snapshot of the session's messages after every
// mutation made by an exchange. It runs on the exchange goroutine.
type UpdateFunc func(messages []protocol.Message)

// Option configures an Orchestrator after config-driven initialization.
// Overrides replace the config-created defaults.
type Option func(*Orchestrator)

// WithBackend overrides the config-created backend client.
func WithBackend(c backend.Client) Option {
	return func(o *Orchestrator) { o.backend = c }
}

// WithClassifier overrides the config-created input classifier.
func WithClassifier(c *extract.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithRegistry overrides the process-wide cancellation registry.
func WithRegistry(r *controller.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithFactory overrides the default message factory.
func WithFactory(f *message.Factory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithObserver overrides the configured observer.
func WithObserver(obs observability.Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithModelConfig overrides the configured model parameters.
func WithModelConfig(cfg config.ModelConfig) Option {
	return func(o *Orchestrator) { o.model = cfg }
}

// Orchestrator drives exchanges for any number of sessions.
type Orchestrator struct {
	backend    backend.Client
	classifier *extract.Classifier
	registry   *controller.Registry
	factory    *message.Factory
	observer   observability.Observer
	bots       *bot.Registry
	sessions   session.Config
	model      config.ModelConfig
	defaultBot string
}

// New creates an Orchestrator from configuration. The backend, classifier,
// bot registry and observer are initialized from their config sections.
// Options applied afterwards can override any subsystem for testing.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Orchestrator, error) {
	client, err := backend.New(ctx, &cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	observer, err := observability.Resolve(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	bots := bot.NewRegistry()
	for name, botCfg := range cfg.Bots {
		if err := bots.Register(name, botCfg); err != nil {
			return nil, fmt.Errorf("failed to register bot %q: %w", name, err)
		}
	}

	factory := message.NewFactory()

	o := &Orchestrator{
		backend:    client,
		classifier: extract.New(&cfg.Extract, extract.WithFactory(factory)),
		registry:   controller.Default,
		factory:    factory,
		observer:   observer,
		bots:       bots,
		sessions:   cfg.Session,
		model:      cfg.Model,
		defaultBot: cfg.Bot,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Bots returns the orchestrator's bot registry.
func (o *Orchestrator) Bots() *bot.Registry {
	return o.bots
}

// Registry returns the cancellation registry holding pending exchanges.
func (o *Orchestrator) Registry() *controller.Registry {
	return o.registry
}

// NewSession creates a session bound to the named bot. An empty name selects
// the configured default bot, or no bot when none is configured.
func (o *Orchestrator) NewSession(ctx context.Context, name string) (session.Session, error) {
	if name == "" {
		name = o.defaultBot
	}

	var b bot.Bot
	if name != "" {
		var err error
		if b, err = o.bots.Get(ctx, name); err != nil {
			return nil, err
		}
	}

	return session.New(&o.sessions, b)
}

// Run performs one exchange: it turns raw input (and an optional upload)
// into a user message, appends it with a streaming assistant placeholder,
// streams the backend reply into the placeholder and splices in the final
// messages.
//
// Every failure after the session check is recorded in the session rather
// than returned. The returned message is the last message the exchange
// produced: the final assistant reply, or the placeholder carrying the
// error. It is nil when the backend finished with no messages.
func (o *Orchestrator) Run(ctx context.Context, sess session.Session, raw string, onUpdate UpdateFunc, upload *extract.Upload) (*protocol.Message, error) {
	if sess == nil {
		return nil, ErrNilSession
	}

	ex := &run{sess: sess, onUpdate: onUpdate}

	data := map[string]any{
		"session":        sess.ID(),
		"content_length": len(raw),
	}
	if upload != nil {
		data["upload"] = upload.Name
	}
	o.emit(ctx, EventStart, observability.LevelInfo, data)

	classified, err := o.classifier.UserMessage(ctx, raw, upload)
	if err != nil {
		user, reply := o.factory.ErrorExchange(raw, err)
		sess.Append(user, reply)
		ex.notify()

		o.emit(ctx, EventExtractError, observability.LevelWarning, map[string]any{
			"session": sess.ID(),
			"error":   err.Error(),
		})
		return &reply, nil
	}

	b := sess.Bot()
	model := o.modelConfig(b)
	snapshot := sess.Messages()
	clearIndex, _ := sess.ClearContextIndex()

	ex.user = classified
	ex.user.Content = raw
	ex.reply = o.factory.Create(protocol.Message{
		Role:      protocol.RoleAssistant,
		Streaming: true,
		ReplyTo:   ex.user.ID,
		Model:     model.Model,
	})
	ex.pos = len(snapshot)
	ex.key = ex.reply.ID
	if ex.key == "" {
		ex.key = strconv.Itoa(ex.pos + 1)
	}

	req := backend.Request{
		Content:     history.NewTurn(classified),
		History:     history.Build(b, snapshot, clearIndex),
		Config:      model,
		UserMessage: ex.user,
	}

	sess.Append(ex.user, ex.reply)
	ex.notify()

	return o.stream(ctx, ex, req), nil
}

// run is the state of one exchange after its message pair is recorded.
type run struct {
	sess     session.Session
	onUpdate UpdateFunc
	user     protocol.Message
	reply    protocol.Message
	key      string
	pos      int // index the user message was appended at
}

// userIndex locates the user message of the pair. Messages without ids are
// found at the position they were appended at.
func (r *run) userIndex() int {
	if r.user.ID == "" {
		return r.pos
	}
	return r.sess.Index(r.user.ID)
}

func (r *run) replyIndex() int {
	if r.reply.ID == "" {
		return r.pos + 1
	}
	return r.sess.Index(r.reply.ID)
}

func (r *run) notify() {
	if r.onUpdate != nil {
		r.onUpdate(r.sess.Messages())
	}
}

// stream runs the backend under an errgroup and applies its events until the
// terminal one. Later events are drained and ignored.
func (o *Orchestrator) stream(ctx context.Context, ex *run, req backend.Request) *protocol.Message {
	callCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	handle := &pending{cancel: cancel}
	o.registry.Add(ex.sess.ID(), ex.key, handle)

	events := make(chan backend.Event)
	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		defer close(events)
		return o.backend.Chat(gctx, req, events)
	})

	var (
		result *protocol.Message
		done   bool
	)
	for ev := range events {
		if done {
			continue
		}

		switch e := ev.(type) {
		case backend.ControllerReady:
			if e.Handle != nil {
				handle.attach(e.Handle)
			}
			o.emit(ctx, EventController, observability.LevelVerbose, map[string]any{
				"session": ex.sess.ID(),
				"key":     ex.key,
			})
		case backend.Update:
			o.update(ctx, ex, e.Content)
		case backend.Finished:
			result = o.finish(ctx, ex, e.Messages)
			done = true
		case backend.Failed:
			result = o.fail(ctx, ex, e.Err)
			done = true
		}
	}

	err := g.Wait()
	if !done {
		if err == nil {
			err = ErrNoTerminalEvent
		}
		result = o.fail(ctx, ex, err)
	}

	return result
}

func (o *Orchestrator) update(ctx context.Context, ex *run, content string) {
	ex.sess.UpdateAt(ex.replyIndex(), func(m *protocol.Message) {
		m.Streaming = true
		if content != "" {
			m.Content = content
		}
	})
	ex.notify()

	o.emit(ctx, EventUpdate, observability.LevelVerbose, map[string]any{
		"session":        ex.sess.ID(),
		"content_length": len(content),
	})
}

func (o *Orchestrator) finish(ctx context.Context, ex *run, msgs []protocol.Message) *protocol.Message {
	wrapped := make([]protocol.Message, 0, len(msgs))
	for _, m := range msgs {
		wrapped = append(wrapped, o.factory.Create(m))
	}

	if !ex.sess.SpliceAt(ex.userIndex(), 2, wrapped...) {
		o.registry.Remove(ex.sess.ID(), ex.key)
		o.emit(ctx, EventDiscard, observability.LevelWarning, map[string]any{
			"session":  ex.sess.ID(),
			"messages": len(wrapped),
		})
		return nil
	}
	ex.notify()
	o.registry.Remove(ex.sess.ID(), ex.key)

	o.emit(ctx, EventFinish, observability.LevelInfo, map[string]any{
		"session":  ex.sess.ID(),
		"messages": len(wrapped),
	})

	if len(wrapped) == 0 {
		return nil
	}
	last := wrapped[len(wrapped)-1]
	return &last
}

func (o *Orchestrator) fail(ctx context.Context, ex *run, err error) *protocol.Message {
	aborted := IsAbort(err)

	replyAt := ex.replyIndex()
	ex.sess.UpdateAt(replyAt, func(m *protocol.Message) {
		m.Content += "\n\n" + prettyError(err)
		m.Streaming = false
		if !aborted {
			m.IsError = true
		}
	})
	if !aborted {
		ex.sess.UpdateAt(ex.userIndex(), func(m *protocol.Message) { m.IsError = true })
	}
	ex.notify()
	o.registry.Remove(ex.sess.ID(), ex.key)

	eventType, level := EventError, observability.LevelError
	if aborted {
		eventType, level = EventAbort, observability.LevelInfo
	}
	o.emit(ctx, eventType, level, map[string]any{
		"session": ex.sess.ID(),
		"error":   err.Error(),
	})

	msgs := ex.sess.Messages()
	if replyAt < 0 || replyAt >= len(msgs) {
		return nil
	}
	return &msgs[replyAt]
}

func (o *Orchestrator) modelConfig(b bot.Bot) config.ModelConfig {
	model := o.model
	model.Merge(&b.Model)
	model.Stream = true
	return model
}

func (o *Orchestrator) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	o.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "exchange.Orchestrator",
		Data:      data,
	})
}

// pending is the registry entry for an exchange. It is registered before the
// backend starts so a stop issued at any point after the message pair is
// recorded takes effect. Abort cancels the backend context with
// backend.ErrAborted and forwards to the backend's own handle once attached.
type pending struct {
	cancel  context.CancelCauseFunc
	mu      sync.Mutex
	handle  controller.Handle
	aborted bool
}

func (p *pending) Abort() {
	p.mu.Lock()
	p.aborted = true
	h := p.handle
	p.mu.Unlock()

	p.cancel(backend.ErrAborted)
	if h != nil {
		h.Abort()
	}
}

func (p *pending) attach(h controller.Handle) {
	p.mu.Lock()
	p.handle = h
	aborted := p.aborted
	p.mu.Unlock()

	if aborted {
		h.Abort()
	}
}
