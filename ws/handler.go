package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/meetline/server/app"
	"github.com/meetline/server/middleware"
)

// NewHandler returns the HTTP surface of the server: /health, the JSON-RPC
// WebSocket at /ws, and a bearer-protected JSON dwell report.
func NewHandler(rpcHandler *RPCHandler, token string, engine *app.Engine) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/report", func(w http.ResponseWriter, r *http.Request) {
		report, err := engine.Report()
		if err != nil {
			slog.Error("failed to build report", "error", err)
			http.Error(w, "failed to build report", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			slog.Debug("failed to write report", "error", err)
		}
	})

	mux.Handle("GET /ws", rpcHandler)

	return middleware.RequestLog(middleware.Auth(token)(mux))
}
