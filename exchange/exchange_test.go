package exchange_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tailored-agentic-units/exchange/backend"
	"github.com/tailored-agentic-units/exchange/backend/mock"
	"github.com/tailored-agentic-units/exchange/bot"
	"github.com/tailored-agentic-units/exchange/controller"
	"github.com/tailored-agentic-units/exchange/core/config"
	"github.com/tailored-agentic-units/exchange/core/protocol"
	"github.com/tailored-agentic-units/exchange/exchange"
	"github.com/tailored-agentic-units/exchange/extract"
	"github.com/tailored-agentic-units/exchange/history"
	"github.com/tailored-agentic-units/exchange/message"
	"github.com/tailored-agentic-units/exchange/observability"
	"github.com/tailored-agentic-units/exchange/session"
)

// The genai dependency starts an opencensus stats worker at init.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// --- Test helpers ---

type stubFetcher struct {
	doc extract.Document
	err error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (extract.Document, error) {
	if f.err != nil {
		return extract.Document{}, f.err
	}
	doc := f.doc
	doc.Source = url
	return doc, nil
}

type recorder struct {
	mu        sync.Mutex
	snapshots [][]protocol.Message
}

func (r *recorder) update(msgs []protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, msgs)
}

func (r *recorder) all() [][]protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots
}

type captureObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureObserver) types() []observability.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]observability.EventType, len(c.events))
	for i, e := range c.events {
		types[i] = e.Type
	}
	return types
}

func newOrchestrator(t *testing.T, client backend.Client, opts ...exchange.Option) (*exchange.Orchestrator, *controller.Registry) {
	t.Helper()

	cfg := exchange.DefaultConfig()
	cfg.Backend.Provider = backend.ProviderEcho
	cfg.Observer = "noop"

	reg := controller.NewRegistry()
	defaults := []exchange.Option{
		exchange.WithBackend(client),
		exchange.WithRegistry(reg),
		exchange.WithClassifier(extract.NewClassifier(&stubFetcher{})),
	}

	o, err := exchange.New(context.Background(), &cfg, append(defaults, opts...)...)
	require.NoError(t, err)
	return o, reg
}

type outcome struct {
	msg *protocol.Message
	err error
}

func runAsync(ctx context.Context, o *exchange.Orchestrator, sess session.Session, raw string) <-chan outcome {
	done := make(chan outcome, 1)
	go func() {
		msg, err := o.Run(ctx, sess, raw, nil, nil)
		done <- outcome{msg, err}
	}()
	return done
}

// --- Run ---

func TestRun_NilSession(t *testing.T) {
	o, _ := newOrchestrator(t, mock.New())

	msg, err := o.Run(context.Background(), nil, "hello", nil, nil)

	assert.ErrorIs(t, err, exchange.ErrNilSession)
	assert.Nil(t, msg)
}

func TestRun_PlainText(t *testing.T) {
	client := mock.New(mock.WithUpdates("Hi", "Hi there"))
	o, reg := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.WithContext("helper", "You are helpful."))
	rec := &recorder{}

	reply, err := o.Run(context.Background(), sess, "hello", rec.update, nil)
	require.NoError(t, err)
	require.NotNil(t, reply)

	requests := client.Requests()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "hello", req.Content)
	require.Len(t, req.History, 1)
	assert.Equal(t, protocol.RoleSystem, req.History[0].Role)
	assert.Equal(t, "You are helpful.", req.History[0].Content)
	assert.True(t, req.Config.Stream)
	assert.Equal(t, "gemini-2.5-flash", req.Config.Model)

	snapshots := rec.all()
	require.Len(t, snapshots, 4)

	first := snapshots[0]
	require.Len(t, first, 2)
	assert.Equal(t, protocol.RoleUser, first[0].Role)
	assert.Equal(t, "hello", first[0].Content)
	assert.Equal(t, protocol.RoleAssistant, first[1].Role)
	assert.True(t, first[1].Streaming)
	assert.Empty(t, first[1].Content)
	assert.Equal(t, first[0].ID, first[1].ReplyTo)
	assert.NotEqual(t, first[0].ID, first[1].ID)

	assert.Equal(t, "Hi", snapshots[1][1].Content)
	assert.Equal(t, "Hi there", snapshots[2][1].Content)
	assert.True(t, snapshots[2][1].Streaming)

	final := sess.Messages()
	require.Len(t, final, 2)
	assert.Equal(t, first[0].ID, final[0].ID)
	assert.Equal(t, "hello", final[0].Content)
	assert.Equal(t, protocol.RoleAssistant, final[1].Role)
	assert.Equal(t, "Hi there", final[1].Content)
	assert.False(t, final[1].Streaming)
	assert.NotEmpty(t, final[1].ID)
	assert.Equal(t, final, snapshots[3])

	assert.Equal(t, final[1], *reply)
	assert.Equal(t, "gemini-2.5-flash", reply.Model)
	assert.Zero(t, reg.Len())
}

func TestRun_URL(t *testing.T) {
	client := mock.New(mock.WithUpdates("A summary."))
	fetcher := &stubFetcher{doc: extract.Document{
		Content: "ARTICLE BODY",
		Size:    12,
		Type:    "text/html",
	}}
	o, reg := newOrchestrator(t, client, exchange.WithClassifier(extract.NewClassifier(fetcher)))
	sess := session.NewMemorySession(bot.Bot{})

	_, err := o.Run(context.Background(), sess, "https://example.com/a", nil, nil)
	require.NoError(t, err)

	requests := client.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, history.SummaryPrompt+"ARTICLE BODY", requests[0].Content)
	assert.Empty(t, requests[0].History)

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "https://example.com/a", msgs[0].Content)
	require.NotNil(t, msgs[0].URLDetail)
	assert.Equal(t, protocol.URLDetail{URL: "https://example.com/a", Size: 12, Type: "text/html"}, *msgs[0].URLDetail)
	assert.Equal(t, "A summary.", msgs[1].Content)
	assert.Zero(t, reg.Len())
}

func TestRun_ExtractionError(t *testing.T) {
	client := mock.New()
	fetcher := &stubFetcher{err: errors.New("connection refused")}
	obs := &captureObserver{}
	o, reg := newOrchestrator(t, client,
		exchange.WithClassifier(extract.NewClassifier(fetcher)),
		exchange.WithObserver(obs),
	)
	sess := session.NewMemorySession(bot.Bot{})
	rec := &recorder{}

	reply, err := o.Run(context.Background(), sess, "https://example.com/down", rec.update, nil)
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Empty(t, client.Requests())
	require.Len(t, rec.all(), 1)

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "https://example.com/down", msgs[0].Content)
	assert.True(t, msgs[1].IsError)
	assert.Equal(t, msgs[0].ID, msgs[1].ReplyTo)
	assert.Contains(t, msgs[1].Content, `"error": true`)
	assert.Contains(t, msgs[1].Content, "connection refused")
	assert.Equal(t, msgs[1], *reply)

	assert.Contains(t, obs.types(), exchange.EventExtractError)
	assert.Zero(t, reg.Len())
}

func TestRun_UnsupportedUpload(t *testing.T) {
	client := mock.New()
	o, _ := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})

	upload := &extract.Upload{Name: "sheet.xlsx", Data: []byte("x")}
	reply, err := o.Run(context.Background(), sess, "see attached", nil, upload)
	require.NoError(t, err)

	assert.Empty(t, client.Requests())
	assert.True(t, reply.IsError)
	assert.Contains(t, reply.Content, extract.ErrUnsupportedFileType.Error())
}

func TestRun_Upload(t *testing.T) {
	client := mock.New()
	classifier := extract.NewClassifier(&stubFetcher{},
		extract.WithFileExtractor(".txt", extract.TextExtractor{}),
	)
	o, _ := newOrchestrator(t, client, exchange.WithClassifier(classifier))
	sess := session.NewMemorySession(bot.Bot{})

	upload := &extract.Upload{Name: "notes.txt", Type: "text/plain", Data: []byte("FILE BODY")}
	_, err := o.Run(context.Background(), sess, "", nil, upload)
	require.NoError(t, err)

	requests := client.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, history.SummaryPrompt+"FILE BODY", requests[0].Content)

	msgs := sess.Messages()
	require.NotNil(t, msgs[0].URLDetail)
	assert.Equal(t, "notes.txt", msgs[0].URLDetail.URL)
}

func TestRun_BackendFailure(t *testing.T) {
	client := mock.New(mock.WithUpdates("partial"), mock.WithFailure(errors.New("quota exceeded")))
	obs := &captureObserver{}
	o, reg := newOrchestrator(t, client, exchange.WithObserver(obs))
	sess := session.NewMemorySession(bot.Bot{})

	reply, err := o.Run(context.Background(), sess, "hello", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, reply)

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsError)
	assert.True(t, msgs[1].IsError)
	assert.False(t, msgs[1].Streaming)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "partial\n\n```json\n"))
	assert.True(t, strings.HasSuffix(msgs[1].Content, "\n```"))
	assert.Contains(t, msgs[1].Content, "quota exceeded")
	assert.Equal(t, msgs[1], *reply)

	assert.Contains(t, obs.types(), exchange.EventError)
	assert.Zero(t, reg.Len())
}

func TestRun_NoTerminalEvent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "returned error", err: errors.New("stream dropped"), want: "stream dropped"},
		{name: "nil error", err: nil, want: exchange.ErrNoTerminalEvent.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, reg := newOrchestrator(t, mock.New(mock.WithoutTerminal(tt.err)))
			sess := session.NewMemorySession(bot.Bot{})

			reply, err := o.Run(context.Background(), sess, "hello", nil, nil)
			require.NoError(t, err)
			require.NotNil(t, reply)

			assert.True(t, reply.IsError)
			assert.False(t, reply.Streaming)
			assert.Contains(t, reply.Content, tt.want)
			assert.Zero(t, reg.Len())
		})
	}
}

func TestRun_TrailingEventsIgnored(t *testing.T) {
	client := mock.New(mock.WithTrailingEvents(
		backend.Update{Content: "late"},
		backend.Failed{Err: errors.New("late failure")},
	))
	o, reg := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})
	rec := &recorder{}

	_, err := o.Run(context.Background(), sess, "hello", rec.update, nil)
	require.NoError(t, err)

	assert.Len(t, rec.all(), 2)
	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[1].Content)
	assert.False(t, msgs[0].IsError)
	assert.False(t, msgs[1].IsError)
	assert.Zero(t, reg.Len())
}

func TestRun_FinishedMessagesWrapped(t *testing.T) {
	client := mock.New(mock.WithFinish(
		protocol.Message{Role: protocol.RoleUser, Content: "hello"},
		protocol.Message{Role: protocol.RoleAssistant, Content: "answer"},
		protocol.Message{Role: protocol.RoleSystem, Content: "note"},
	))
	o, _ := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})
	sess.Append(protocol.NewMessage(protocol.RoleUser, "earlier"))

	reply, err := o.Run(context.Background(), sess, "hello", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "note", reply.Content)

	msgs := sess.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "earlier", msgs[0].Content)

	seen := make(map[string]bool)
	for _, m := range msgs[1:] {
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.Date.IsZero())
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}

func TestRun_FinishedWithoutMessages(t *testing.T) {
	client := mock.New(mock.WithFinish([]protocol.Message{}...))
	o, reg := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})

	reply, err := o.Run(context.Background(), sess, "hello", nil, nil)
	require.NoError(t, err)

	assert.Nil(t, reply)
	assert.Empty(t, sess.Messages())
	assert.Zero(t, reg.Len())
}

func TestRun_HistoryWindow(t *testing.T) {
	earlier := []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "https://example.com"),
		protocol.NewMessage(protocol.RoleURL, "fetched page"),
		protocol.NewMessage(protocol.RoleAssistant, "old reply"),
	}

	t.Run("full history", func(t *testing.T) {
		client := mock.New()
		o, _ := newOrchestrator(t, client)
		sess := session.NewMemorySession(bot.WithContext("helper", "You are helpful."))
		sess.Append(earlier...)

		_, err := o.Run(context.Background(), sess, "next", nil, nil)
		require.NoError(t, err)

		hist := client.Requests()[0].History
		require.Len(t, hist, 4)
		assert.Equal(t, "You are helpful.", hist[0].Content)
		assert.Equal(t, protocol.RoleAssistant, hist[2].Role)
		assert.Equal(t, "fetched page", hist[2].Content)
	})

	t.Run("cleared context", func(t *testing.T) {
		client := mock.New()
		o, _ := newOrchestrator(t, client)
		sess := session.NewMemorySession(bot.WithContext("helper", "You are helpful."))
		sess.Append(earlier...)
		sess.ClearContext()

		_, err := o.Run(context.Background(), sess, "next", nil, nil)
		require.NoError(t, err)

		hist := client.Requests()[0].History
		require.Len(t, hist, 1)
		assert.Equal(t, protocol.RoleSystem, hist[0].Role)
	})
}

func TestRun_ModelConfig(t *testing.T) {
	client := mock.New()
	o, _ := newOrchestrator(t, client, exchange.WithModelConfig(config.ModelConfig{
		Model:     "base-model",
		MaxTokens: 100,
	}))

	b := bot.WithContext("helper")
	b.Model = config.ModelConfig{Model: "bot-model", Temperature: config.Float(0)}
	sess := session.NewMemorySession(b)

	_, err := o.Run(context.Background(), sess, "hello", nil, nil)
	require.NoError(t, err)

	cfg := client.Requests()[0].Config
	assert.Equal(t, "bot-model", cfg.Model)
	assert.Equal(t, 100, cfg.MaxTokens)
	require.NotNil(t, cfg.Temperature)
	assert.Zero(t, *cfg.Temperature)
	assert.True(t, cfg.Stream)

	msgs := sess.Messages()
	assert.Equal(t, "bot-model", msgs[1].Model)
}

func TestRun_NotificationsAreSnapshots(t *testing.T) {
	client := mock.New(mock.WithUpdates("one", "two"))
	o, _ := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})

	var snapshots [][]protocol.Message
	onUpdate := func(msgs []protocol.Message) {
		if len(snapshots) > 0 {
			prev := snapshots[len(snapshots)-1]
			prev[len(prev)-1].Content = "mutated"
		}
		snapshots = append(snapshots, msgs)
	}

	_, err := o.Run(context.Background(), sess, "hello", onUpdate, nil)
	require.NoError(t, err)

	require.Len(t, snapshots, 4)
	assert.Equal(t, "two", snapshots[3][1].Content)
	assert.Equal(t, "two", sess.Messages()[1].Content)
}

func TestRun_Abort(t *testing.T) {
	client := mock.New(mock.WithUpdates("partial"), mock.WithWaitForAbort())
	obs := &captureObserver{}
	o, reg := newOrchestrator(t, client, exchange.WithObserver(obs))
	sess := session.NewMemorySession(bot.Bot{})
	ctx := context.Background()

	done := runAsync(ctx, o, sess, "hello")
	<-client.Started()

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	placeholder := msgs[1].ID

	_, pending := reg.Get(sess.ID(), placeholder)
	assert.True(t, pending)
	assert.True(t, reg.HasPending())

	assert.True(t, o.Stop(ctx, sess.ID(), placeholder))

	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.msg)

	assert.Equal(t, placeholder, res.msg.ID)
	assert.False(t, res.msg.IsError)
	assert.False(t, res.msg.Streaming)
	assert.True(t, strings.HasPrefix(res.msg.Content, "partial\n\n```json\n"))
	assert.Contains(t, res.msg.Content, backend.ErrAborted.Error())

	msgs = sess.Messages()
	assert.False(t, msgs[0].IsError)
	assert.Zero(t, reg.Len())
	assert.False(t, o.Stop(ctx, sess.ID(), placeholder))

	types := obs.types()
	assert.Contains(t, types, exchange.EventStop)
	assert.Contains(t, types, exchange.EventAbort)
	assert.NotContains(t, types, exchange.EventError)
}

func TestRun_AbortWithoutBackendHandle(t *testing.T) {
	client := mock.New(mock.WithoutController(), mock.WithWaitForAbort())
	o, reg := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})
	ctx := context.Background()

	done := runAsync(ctx, o, sess, "hello")
	<-client.Started()

	assert.True(t, o.Stop(ctx, sess.ID(), sess.Messages()[1].ID))

	res := <-done
	require.NotNil(t, res.msg)
	assert.False(t, res.msg.IsError)
	assert.Contains(t, res.msg.Content, backend.ErrAborted.Error())
	assert.Zero(t, reg.Len())
}

func TestRun_CallerCancel(t *testing.T) {
	client := mock.New(mock.WithWaitForAbort())
	o, reg := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})
	ctx, cancel := context.WithCancel(context.Background())

	done := runAsync(ctx, o, sess, "hello")
	<-client.Started()
	cancel()

	res := <-done
	require.NotNil(t, res.msg)
	assert.False(t, res.msg.IsError)
	assert.Zero(t, reg.Len())
}

func TestRun_EmptyIDs(t *testing.T) {
	factory := message.NewFactory(message.WithIDFunc(func() string { return "" }))
	newEmptyIDOrchestrator := func(t *testing.T, client backend.Client) (*exchange.Orchestrator, *controller.Registry) {
		classifier := extract.NewClassifier(&stubFetcher{}, extract.WithFactory(factory))
		return newOrchestrator(t, client, exchange.WithFactory(factory), exchange.WithClassifier(classifier))
	}
	newSession := func() session.Session {
		sess := session.NewMemorySession(bot.Bot{})
		sess.Append(protocol.Message{Role: protocol.RoleUser, Content: "earlier"})
		return sess
	}

	t.Run("stopped through fallback key", func(t *testing.T) {
		client := mock.New(mock.WithUpdates("partial"), mock.WithWaitForAbort())
		o, reg := newEmptyIDOrchestrator(t, client)
		sess := newSession()
		ctx := context.Background()

		done := runAsync(ctx, o, sess, "hello")
		<-client.Started()

		assert.True(t, o.Stop(ctx, sess.ID(), "2"))

		res := <-done
		require.NotNil(t, res.msg)

		msgs := sess.Messages()
		require.Len(t, msgs, 3)
		assert.Equal(t, "earlier", msgs[0].Content)
		assert.Equal(t, protocol.RoleUser, msgs[1].Role)
		assert.Equal(t, "hello", msgs[1].Content)
		assert.False(t, msgs[1].IsError)
		assert.Equal(t, protocol.RoleAssistant, msgs[2].Role)
		assert.False(t, msgs[2].Streaming)
		assert.True(t, strings.HasPrefix(msgs[2].Content, "partial\n\n```json\n"))
		assert.Equal(t, msgs[2], *res.msg)
		assert.Zero(t, reg.Len())
	})

	t.Run("finished", func(t *testing.T) {
		o, reg := newEmptyIDOrchestrator(t, mock.New(mock.WithUpdates("Hi")))
		sess := newSession()

		reply, err := o.Run(context.Background(), sess, "hello", nil, nil)
		require.NoError(t, err)
		require.NotNil(t, reply)

		msgs := sess.Messages()
		require.Len(t, msgs, 3)
		assert.Equal(t, "earlier", msgs[0].Content)
		assert.Equal(t, "hello", msgs[1].Content)
		assert.Equal(t, "Hi", msgs[2].Content)
		assert.False(t, msgs[2].Streaming)
		assert.Zero(t, reg.Len())
	})

	t.Run("failed", func(t *testing.T) {
		o, _ := newEmptyIDOrchestrator(t, mock.New(mock.WithFailure(errors.New("boom"))))
		sess := newSession()

		_, err := o.Run(context.Background(), sess, "hello", nil, nil)
		require.NoError(t, err)

		msgs := sess.Messages()
		require.Len(t, msgs, 3)
		assert.False(t, msgs[0].IsError)
		assert.Equal(t, "hello", msgs[1].Content)
		assert.True(t, msgs[1].IsError)
		assert.True(t, msgs[2].IsError)
		assert.False(t, msgs[2].Streaming)
		assert.Contains(t, msgs[2].Content, "boom")
	})
}

func TestRun_SessionClearedMidExchange(t *testing.T) {
	client := mock.New(mock.WithUpdates("partial"))
	obs := &captureObserver{}
	o, reg := newOrchestrator(t, client, exchange.WithObserver(obs))
	sess := session.NewMemorySession(bot.Bot{})

	onUpdate := func(msgs []protocol.Message) {
		if len(msgs) == 2 && msgs[1].Content == "partial" {
			sess.Clear()
		}
	}

	reply, err := o.Run(context.Background(), sess, "hello", onUpdate, nil)
	require.NoError(t, err)

	assert.Nil(t, reply)
	assert.Empty(t, sess.Messages())
	assert.Zero(t, reg.Len())

	types := obs.types()
	assert.Contains(t, types, exchange.EventDiscard)
	assert.NotContains(t, types, exchange.EventFinish)
}

func TestStopAll(t *testing.T) {
	client := mock.New(mock.WithWaitForAbort())
	o, reg := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})
	ctx := context.Background()

	done := runAsync(ctx, o, sess, "hello")
	<-client.Started()

	assert.Equal(t, 0, o.StopAll(ctx, "other-session"))
	assert.Equal(t, 1, o.StopAll(ctx, sess.ID()))

	<-done
	assert.Zero(t, reg.Len())
}

func TestStop_Miss(t *testing.T) {
	o, _ := newOrchestrator(t, mock.New())
	assert.False(t, o.Stop(context.Background(), "session", "message"))
}

// --- Retry ---

func TestRetry(t *testing.T) {
	client := mock.New(mock.WithUpdates("reply"))
	o, _ := newOrchestrator(t, client)
	sess := session.NewMemorySession(bot.Bot{})
	ctx := context.Background()

	first, err := o.Run(ctx, sess, "hello", nil, nil)
	require.NoError(t, err)

	second, err := o.Retry(ctx, sess, first.ID, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	requests := client.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "hello", requests[1].Content)
	require.Len(t, requests[1].History, 2)

	msgs := sess.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "hello", msgs[2].Content)
	assert.NotEqual(t, msgs[0].ID, msgs[2].ID)

	_, err = o.Retry(ctx, sess, msgs[2].ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, sess.Messages(), 6)
}

func TestRetry_Upload(t *testing.T) {
	client := mock.New()
	classifier := extract.NewClassifier(&stubFetcher{},
		extract.WithFileExtractor(".txt", extract.TextExtractor{}),
	)
	o, _ := newOrchestrator(t, client, exchange.WithClassifier(classifier))
	sess := session.NewMemorySession(bot.Bot{})
	ctx := context.Background()
	upload := &extract.Upload{Name: "notes.txt", Data: []byte("FILE BODY")}

	first, err := o.Run(ctx, sess, "", nil, upload)
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = o.Retry(ctx, sess, first.ID, nil, nil)
	assert.ErrorIs(t, err, exchange.ErrUploadRequired)
	assert.Len(t, client.Requests(), 1)
	assert.Len(t, sess.Messages(), 2)

	_, err = o.Retry(ctx, sess, first.ID, nil, upload)
	require.NoError(t, err)

	requests := client.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, history.SummaryPrompt+"FILE BODY", requests[1].Content)
}

func TestRetry_URL(t *testing.T) {
	client := mock.New()
	fetcher := &stubFetcher{doc: extract.Document{Content: "ARTICLE BODY", Type: "text/html"}}
	o, _ := newOrchestrator(t, client, exchange.WithClassifier(extract.NewClassifier(fetcher)))
	sess := session.NewMemorySession(bot.Bot{})
	ctx := context.Background()

	first, err := o.Run(ctx, sess, "https://example.com/a", nil, nil)
	require.NoError(t, err)

	_, err = o.Retry(ctx, sess, first.ID, nil, nil)
	require.NoError(t, err)

	requests := client.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, history.SummaryPrompt+"ARTICLE BODY", requests[1].Content)

	msgs := sess.Messages()
	require.Len(t, msgs, 4)
	require.NotNil(t, msgs[2].URLDetail)
	assert.Equal(t, "https://example.com/a", msgs[2].URLDetail.URL)
}

func TestRetry_Errors(t *testing.T) {
	o, _ := newOrchestrator(t, mock.New())
	ctx := context.Background()

	_, err := o.Retry(ctx, nil, "id", nil, nil)
	assert.ErrorIs(t, err, exchange.ErrNilSession)

	sess := session.NewMemorySession(bot.Bot{})
	_, err = o.Retry(ctx, sess, "missing", nil, nil)
	assert.ErrorIs(t, err, exchange.ErrMessageNotFound)

	orphan := protocol.NewMessage(protocol.RoleAssistant, "orphan")
	orphan.ID = "orphan"
	orphan.ReplyTo = "gone"
	sess.Append(orphan)
	_, err = o.Retry(ctx, sess, "orphan", nil, nil)
	assert.ErrorIs(t, err, exchange.ErrMessageNotFound)
}

// --- IsAbort ---

func TestIsAbort(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: backend.ErrAborted, want: true},
		{name: "wrapped sentinel", err: errors.Join(errors.New("stream"), backend.ErrAborted), want: true},
		{name: "context canceled", err: context.Canceled, want: true},
		{name: "message text", err: errors.New("Request Aborted by user"), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exchange.IsAbort(tt.err))
		})
	}
}

// --- Construction ---

func TestNew_UnknownProvider(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.Backend.Provider = "nope"

	_, err := exchange.New(context.Background(), &cfg)
	assert.ErrorIs(t, err, backend.ErrUnknownProvider)
}

func TestNew_UnknownObserver(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.Backend.Provider = backend.ProviderEcho
	cfg.Observer = "nope"

	_, err := exchange.New(context.Background(), &cfg)
	assert.Error(t, err)
}

func TestNewSession(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.Backend.Provider = backend.ProviderEcho
	cfg.Observer = "noop"
	cfg.Bot = "helper"
	cfg.Bots = map[string]bot.Config{
		"helper": {Context: []string{"You are helpful."}},
		"terse":  {Context: []string{"Be brief."}},
	}

	o, err := exchange.New(context.Background(), &cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"helper", "terse"}, o.Bots().List())
	assert.Same(t, controller.Default, o.Registry())

	sess, err := o.NewSession(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "helper", sess.Bot().Name)
	require.Len(t, sess.Bot().Context, 1)
	assert.Equal(t, "You are helpful.", sess.Bot().Context[0].Content)

	sess, err = o.NewSession(context.Background(), "terse")
	require.NoError(t, err)
	assert.Equal(t, "terse", sess.Bot().Name)

	_, err = o.NewSession(context.Background(), "missing")
	assert.ErrorIs(t, err, bot.ErrBotNotFound)
}

func TestNew_EchoEndToEnd(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.Backend.Provider = backend.ProviderEcho
	cfg.Observer = "noop"

	o, err := exchange.New(context.Background(), &cfg, exchange.WithRegistry(controller.NewRegistry()))
	require.NoError(t, err)

	sess, err := o.NewSession(context.Background(), "")
	require.NoError(t, err)

	reply, err := o.Run(context.Background(), sess, "ping pong", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "ping pong", reply.Content)
	assert.Len(t, sess.Messages(), 2)
}
