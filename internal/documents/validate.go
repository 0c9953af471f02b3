package documents

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// inspectDocument validates submitted bytes and reports the detected
// content type plus the PDF page count when applicable. Empty or
// unsupported bytes fail with ErrInvalidInput; validation stops short of
// content inspection beyond format detection.
func inspectDocument(data []byte) (string, *int, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty document", ErrInvalidInput)
	}

	contentType := http.DetectContentType(data)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}

	switch contentType {
	case "application/pdf":
		count, err := api.PageCount(bytes.NewReader(data), nil)
		if err != nil {
			return "", nil, fmt.Errorf("%w: unreadable PDF: %v", ErrInvalidInput, err)
		}
		return contentType, &count, nil
	case "text/plain":
		return contentType, nil, nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported content type %s", ErrInvalidInput, contentType)
	}
}

// validateCallbackURL requires a syntactically valid absolute http(s) URL.
// No network probe happens at submission time.
func validateCallbackURL(raw *string) (*string, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}

	u, err := url.Parse(*raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed callback URL: %v", ErrInvalidInput, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: callback URL must be absolute", ErrInvalidInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: callback URL scheme %s not supported", ErrInvalidInput, u.Scheme)
	}

	return raw, nil
}
