package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// FitzEngine extracts text with MuPDF via go-fitz. Plain text passes
// through untouched; everything else is opened from memory and read
// page by page.
type FitzEngine struct{}

// NewFitzEngine creates a MuPDF-backed extraction engine.
func NewFitzEngine() *FitzEngine {
	return &FitzEngine{}
}

func (e *FitzEngine) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if contentType == "text/plain" {
		return string(data), nil
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("%w: open document: %v", ErrUnreadable, err)
	}
	defer doc.Close()

	var sb strings.Builder
	for page := range doc.NumPage() {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrUnreadable, page+1, err)
		}

		sb.WriteString(text)
	}

	return sb.String(), nil
}
