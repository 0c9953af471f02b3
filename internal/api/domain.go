package api

import (
	"github.com/JaimeStill/scrivener/internal/documents"
)

// Domain holds the domain systems exposed through the API.
type Domain struct {
	Documents documents.System
}

// NewDomain wraps the shared domain systems for route registration.
func NewDomain(docs documents.System) *Domain {
	return &Domain{
		Documents: docs,
	}
}
