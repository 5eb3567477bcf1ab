// Package extract classifies raw user input and turns URLs and uploaded
// documents into message content.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/exchange/core/protocol"
	"github.com/tailored-agentic-units/exchange/message"
)

var urlPattern = regexp.MustCompile(`^https?://\S+$`)

// IsURL reports whether the trimmed input is a single http(s) URL.
func IsURL(s string) bool {
	return urlPattern.MatchString(strings.TrimSpace(s))
}

// Upload is a file supplied alongside user input.
type Upload struct {
	Name string
	Type string
	Data []byte
}

// Ext returns the lower-cased file extension, including the dot.
func (u Upload) Ext() string {
	return strings.ToLower(filepath.Ext(u.Name))
}

// Document is the output of an extractor: the body text plus the metadata
// envelope describing where it came from.
type Document struct {
	Content string
	Source  string // URL or filename
	Size    int64
	Type    string
}

// Strip returns the metadata envelope without the body content.
func (d Document) Strip() *protocol.URLDetail {
	return &protocol.URLDetail{
		URL:  d.Source,
		Size: d.Size,
		Type: d.Type,
	}
}

// URLFetcher retrieves and extracts the readable content of a web page.
type URLFetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
}

// FileExtractor extracts text from an uploaded file.
type FileExtractor interface {
	Extract(ctx context.Context, upload Upload) (Document, error)
}

// FileExtractorFunc adapts a function to FileExtractor.
type FileExtractorFunc func(ctx context.Context, upload Upload) (Document, error)

func (f FileExtractorFunc) Extract(ctx context.Context, upload Upload) (Document, error) {
	return f(ctx, upload)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFactory overrides the message factory.
func WithFactory(f *message.Factory) Option {
	return func(c *Classifier) { c.factory = f }
}

// WithFileExtractor registers fx for the given extension.
func WithFileExtractor(ext string, fx FileExtractor) Option {
	return func(c *Classifier) { c.files[normalizeExt(ext)] = fx }
}

// Classifier decides how raw input becomes a user message and dispatches to
// the matching extractor. Safe for concurrent use.
type Classifier struct {
	fetcher URLFetcher
	factory *message.Factory
	files   map[string]FileExtractor
	mu      sync.RWMutex
}

// NewClassifier creates a Classifier that fetches URLs through fetcher. No
// file extractors are registered unless given as options.
func NewClassifier(fetcher URLFetcher, opts ...Option) *Classifier {
	c := &Classifier{
		fetcher: fetcher,
		factory: message.NewFactory(),
		files:   make(map[string]FileExtractor),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New creates a Classifier from configuration with the web fetcher and the
// default PDF and plain-text extractors.
func New(cfg *Config, opts ...Option) *Classifier {
	defaults := []Option{
		WithFileExtractor(".pdf", PDFExtractor{}),
		WithFileExtractor(".txt", TextExtractor{}),
		WithFileExtractor(".text", TextExtractor{}),
		WithFileExtractor(".md", TextExtractor{}),
	}
	return NewClassifier(NewWebFetcher(cfg), append(defaults, opts...)...)
}

// Register adds or replaces the extractor for ext.
func (c *Classifier) Register(ext string, fx FileExtractor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[normalizeExt(ext)] = fx
}

// Supports reports whether an extractor exists for ext.
func (c *Classifier) Supports(ext string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.files[normalizeExt(ext)]
	return ok
}

// UserMessage builds the user message for content and an optional upload.
//
// An upload is dispatched by extension. Otherwise content that is a single URL
// is fetched; anything else is kept verbatim. Extracted bodies become the
// message content and the stripped envelope becomes URLDetail. Failures are
// returned as *Error and are not retried.
func (c *Classifier) UserMessage(ctx context.Context, content string, upload *Upload) (protocol.Message, error) {
	if upload != nil {
		doc, err := c.extractFile(ctx, *upload)
		if err != nil {
			return protocol.Message{}, &Error{Source: upload.Name, Err: err}
		}
		return c.fromDocument(doc), nil
	}

	if IsURL(content) {
		url := strings.TrimSpace(content)
		if c.fetcher == nil {
			return protocol.Message{}, &Error{Source: url, Err: ErrFetch}
		}
		doc, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return protocol.Message{}, &Error{Source: url, Err: err}
		}
		return c.fromDocument(doc), nil
	}

	return c.factory.Create(protocol.Message{
		Role:    protocol.RoleUser,
		Content: content,
	}), nil
}

func (c *Classifier) extractFile(ctx context.Context, upload Upload) (Document, error) {
	c.mu.RLock()
	fx, ok := c.files[upload.Ext()]
	c.mu.RUnlock()

	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFileType, upload.Ext())
	}
	return fx.Extract(ctx, upload)
}

func (c *Classifier) fromDocument(doc Document) protocol.Message {
	return c.factory.Create(protocol.Message{
		Role:      protocol.RoleUser,
		Content:   doc.Content,
		URLDetail: doc.Strip(),
	})
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
