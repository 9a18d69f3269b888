package server

import (
	"context"
	"net"
	"sync"

	"github.com/rakunlabs/ada"

	"github.com/hiresynth/synth/internal/config"
	"github.com/hiresynth/synth/pkg/synth"

	mcors "github.com/rakunlabs/ada/middleware/cors"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"
)

// Server exposes one orchestrator instance over HTTP: trigger streaming,
// state inspection, and an active-run registry with cancellation.
type Server struct {
	config config.Server

	server *ada.Server

	synth *synth.Synth

	// synthMu serializes triggers; the orchestrator does not support
	// concurrent transitions on a single instance.
	synthMu sync.Mutex

	activeRuns sync.Map
}

// New builds the HTTP server around an orchestrator instance.
func New(cfg config.Server, s *synth.Synth) (*Server, error) {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	srv := &Server{
		config: cfg,
		server: mux,
		synth:  s,
	}

	baseGroup := mux.Group(cfg.BasePath)
	apiGroup := baseGroup.Group("/api/v1")

	apiGroup.GET("/state", srv.StateAPI)
	apiGroup.POST("/trigger/*", srv.TriggerAPI)
	apiGroup.GET("/runs", srv.ListActiveRunsAPI)
	apiGroup.POST("/runs/*", srv.CancelRunAPI)

	return srv, nil
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}
