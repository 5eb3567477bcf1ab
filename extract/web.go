package extract

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const truncatedMarker = "\n\n[...truncated...]"

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// WebFetcher fetches a page over HTTP and reduces it to readable text.
type WebFetcher struct {
	client *http.Client
	cfg    Config
}

// NewWebFetcher creates a WebFetcher from configuration.
func NewWebFetcher(cfg *Config) *WebFetcher {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}
	return &WebFetcher{
		client: &http.Client{},
		cfg:    merged,
	}
}

// WithClient replaces the HTTP client used for fetches.
func (f *WebFetcher) WithClient(client *http.Client) *WebFetcher {
	f.client = client
	return f
}

// Fetch retrieves url and extracts its content. HTML is reduced to text with
// the page title as a heading; plain text, markdown and JSON are returned
// verbatim; PDF bodies go through the PDF extractor. Text cut off at MaxBytes
// ends with a truncation marker; a PDF cut off there is an error.
func (f *WebFetcher) Fetch(ctx context.Context, url string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("%w: failed to create request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("%w: HTTP %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("%w: failed to read response: %v", ErrFetch, err)
	}
	truncated := int64(len(body)) > f.cfg.MaxBytes
	if truncated {
		body = body[:f.cfg.MaxBytes]
	}

	mediaType := "text/html"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = parsed
		}
	}

	doc := Document{
		Source: url,
		Size:   int64(len(body)),
		Type:   mediaType,
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		text, err := htmlToText(string(body))
		if err != nil {
			return Document{}, fmt.Errorf("%w: failed to parse html: %v", ErrFetch, err)
		}
		doc.Content = text
	case mediaType == "application/pdf":
		if truncated {
			return Document{}, fmt.Errorf("%w: pdf exceeds %d bytes", ErrFetch, f.cfg.MaxBytes)
		}
		text, err := pdfText(body)
		if err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		doc.Content = text
	case strings.HasPrefix(mediaType, "text/") || mediaType == "application/json":
		doc.Content = strings.TrimSpace(string(body))
	default:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFileType, mediaType)
	}

	if truncated {
		doc.Content += truncatedMarker
	}
	return doc, nil
}

// htmlToText reduces an HTML document to its title and readable body text.
func htmlToText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if title := findTitle(doc); title != "" {
		sb.WriteString("# ")
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	if body := findElement(doc, "body"); body != nil {
		writeText(body, &sb, 0)
	} else {
		writeText(doc, &sb, 0)
	}

	return cleanText(sb.String()), nil
}

func findTitle(n *html.Node) string {
	title := findElement(n, "title")
	if title == nil {
		return ""
	}
	var sb strings.Builder
	for c := title.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func writeText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 64 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "head", "title":
			return
		case "br":
			sb.WriteString("\n")
			return
		case "li":
			sb.WriteString("\n- ")
		case "p", "div", "section", "article", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote", "tr":
			sb.WriteString("\n\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, sb, depth+1)
	}
}

func cleanText(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
