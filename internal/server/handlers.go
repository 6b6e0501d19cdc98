// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/Tyrowin/chatroom/internal/connection"
)

// WebSocketHandler upgrades the request and hands the connection to the
// router. Each binary WebSocket message carries exactly one protocol frame.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.router.AddTransport(connection.NewWebSocketTransport(conn, s.cfg.MaxMessageSize))
}

// HealthHandler provides a simple health check endpoint that returns server
// status and the number of participants online.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat room relay is running! %d users online", s.router.Count())
}
