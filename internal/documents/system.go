package documents

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/scrivener/pkg/pagination"
)

// System defines the public contract for document ledger operations.
//
// The transition methods (MarkProcessing, Complete, Fail, MarkCallback)
// are guarded: each succeeds only from its legal predecessor states and
// reports whether the record actually advanced. A false result with a nil
// error means the guard suppressed the write (duplicate trigger or a
// concurrent writer got there first); callers treat that as a no-op.
type System interface {
	Handler(maxUploadSize int64) *Handler

	Submit(ctx context.Context, cmd SubmitCommand) (*Document, error)
	Find(ctx context.Context, id uuid.UUID) (*Document, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Document], error)

	MarkProcessing(ctx context.Context, id uuid.UUID) (*Document, bool, error)
	Complete(ctx context.Context, id uuid.UUID, text string) (*Document, bool, error)
	Fail(ctx context.Context, id uuid.UUID, code, message string) (*Document, bool, error)
	MarkCallback(ctx context.Context, id uuid.UUID, state CallbackState) (bool, error)
}
