package main

import (
	"time"

	"github.com/JaimeStill/scrivener/internal/api"
	"github.com/JaimeStill/scrivener/internal/config"
	"github.com/JaimeStill/scrivener/internal/infrastructure"
)

type Server struct {
	infra    *infrastructure.Infrastructure
	pipeline *Pipeline
	modules  *Modules
	http     *httpServer
	cfg      *config.Config
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	runtime := api.NewRuntime(cfg, infra)
	pipeline := NewPipeline(cfg, infra, runtime.Pagination)

	modules, err := NewModules(cfg, runtime, pipeline)
	if err != nil {
		return nil, err
	}

	router := buildRouter(infra)
	modules.Mount(router)

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
	)

	return &Server{
		infra:    infra,
		pipeline: pipeline,
		modules:  modules,
		http:     newHTTPServer(&cfg.Server, router, infra.Logger),
		cfg:      cfg,
	}, nil
}

func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	s.pipeline.Start(s.infra.Lifecycle, &s.cfg.Pipeline)

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
