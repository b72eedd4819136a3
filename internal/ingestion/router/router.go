// Package router wires the ingest service routes and applies the middleware
// chain (RequestID → Recover → Timeout → Metrics).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/middleware"
)

// New builds the ingest service HTTP handler.
//
// Route table:
//
//	POST   /api/v1/assets/ingest   → signed asset ingest
//	GET    /api/v1/assets/{id}     → catalog entry lookup (X-Ingest-Key)
//	GET    /health/live            → liveness
//	GET    /health/ready           → readiness (store, rate limiter)
//
// Middleware chain (outermost first):
//
//	RequestID → Recover → Timeout → Metrics → mux
//
// Metrics sits directly on the mux so it sees the matched route pattern.
func New(h *handler.Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /api/v1/assets/ingest", h.Ingest)
	mux.HandleFunc("GET /api/v1/assets/{id}", h.GetAsset)

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(requestTimeout)(chain)
	chain = middleware.Recover(chain)
	chain = middleware.RequestID(chain)

	return chain
}
