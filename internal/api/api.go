// Package api assembles the API module with the document system and route registration.
package api

import (
	"net/http"

	"github.com/JaimeStill/scrivener/internal/config"
	"github.com/JaimeStill/scrivener/internal/documents"
	"github.com/JaimeStill/scrivener/pkg/middleware"
	"github.com/JaimeStill/scrivener/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// The documents system is constructed by the caller so the pipeline and the
// API share a single instance.
func NewModule(cfg *config.Config, runtime *Runtime, docs documents.System) (*module.Module, error) {
	domain := NewDomain(docs)

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))

	return m, nil
}
