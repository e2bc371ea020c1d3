package server

import "github.com/Nash0810/gobalance/internal/ratelimit"

func (s *Server) routes() {
	s.mux.HandleFunc("GET /", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.handleMetrics())

	s.mux.HandleFunc("GET /api/models", s.withAuth(s.withRateLimit(ratelimit.ClassUnlimited, s.handleListModels)))
	s.mux.HandleFunc("GET /api/models/instances", s.withAuth(s.withAdmin(s.handleListInstances)))
	s.mux.HandleFunc("DELETE /api/models/{name}", s.withAuth(s.withAdmin(s.handleDeleteModel)))
	s.mux.HandleFunc("POST /api/models/pull/{name}", s.withAuth(s.withRateLimit(ratelimit.ClassModelPull, s.handlePullModel)))

	s.mux.HandleFunc("POST /api/chat", s.withAuth(s.withRateLimit(ratelimit.ClassChat, s.handleChat)))
	s.mux.HandleFunc("POST /api/chat/stream", s.withAuth(s.withRateLimit(ratelimit.ClassChat, s.handleChatStream)))

	s.mux.HandleFunc("/api/finetune/", s.withAuth(s.withRateLimit(ratelimit.ClassFinetune, s.handleExternalCollaborator)))
	s.mux.HandleFunc("/api/admin/", s.withAuth(s.withAdmin(s.handleExternalCollaborator)))
}
