// Package httpapi exposes the orchestrator over the HTTP surface of §6.2:
// conversation lifecycle endpoints plus the SSE message stream.
package httpapi

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	ctxmgr "ragorchestrator/internal/context"
	"ragorchestrator/internal/orchestrator"
	"ragorchestrator/internal/tools"
)

// Server wires the orchestrator, context manager, and tool registry to
// http.ServeMux method-pattern routes.
type Server struct {
	orch     *orchestrator.Orchestrator
	ctxMgr   *ctxmgr.Manager
	registry tools.Registry
	mux      *http.ServeMux
}

// NewServer constructs the HTTP API server.
func NewServer(orch *orchestrator.Orchestrator, ctxMgr *ctxmgr.Manager, registry tools.Registry) *Server {
	s := &Server{orch: orch, ctxMgr: ctxMgr, registry: registry, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Handler returns the otel-instrumented http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "httpapi")
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/v1/chat/conversations", s.handleCreateConversation)
	s.mux.HandleFunc("GET /api/v1/chat/conversations/{id}", s.handleGetConversation)
	s.mux.HandleFunc("POST /api/v1/chat/conversations/{id}/messages/stream", s.handleStreamMessage)
	s.mux.HandleFunc("GET /api/v1/chat/conversations", s.handleListConversations)

	s.mux.HandleFunc("GET /api/v1/agent/tools", s.handleListTools)
	s.mux.HandleFunc("GET /api/v1/agent/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/agent/ping", s.handlePing)
}
