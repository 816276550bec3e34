package server

import "net/http"

// routes configures the application's HTTP surface: the WebSocket endpoint,
// the archive download, a health check, and the embedded chat page for
// everything else.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/export-all", s.handleExportAll)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}
