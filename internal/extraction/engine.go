// Package extraction consumes document-stored events and runs text
// extraction, recording results in the document ledger.
package extraction

import (
	"context"
	"errors"
)

// ErrUnreadable marks a document the engine cannot parse. It is a
// permanent failure: the worker records FAILED without retrying.
// Every other engine error is treated as transient and retried.
var ErrUnreadable = errors.New("document unreadable")

// Engine turns raw document bytes into extracted text. Implementations
// must honor ctx cancellation; a long-running extraction is cut off by
// the worker's per-attempt timeout.
type Engine interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}
