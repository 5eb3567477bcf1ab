package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts the plain text layer of a PDF upload.
type PDFExtractor struct{}

func (PDFExtractor) Extract(_ context.Context, upload Upload) (Document, error) {
	text, err := pdfText(upload.Data)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Content: text,
		Source:  upload.Name,
		Size:    int64(len(upload.Data)),
		Type:    typeOr(upload.Type, "application/pdf"),
	}, nil
}

func pdfText(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// TextExtractor treats the upload as UTF-8 text. Invalid sequences are
// replaced with U+FFFD.
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, upload Upload) (Document, error) {
	content := string(upload.Data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "�")
	}
	return Document{
		Content: content,
		Source:  upload.Name,
		Size:    int64(len(upload.Data)),
		Type:    typeOr(upload.Type, "text/plain"),
	}, nil
}

func typeOr(t, fallback string) string {
	if t != "" {
		return t
	}
	return fallback
}
