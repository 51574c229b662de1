package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
)

// Dependencies holds the services the router wires into the eight
// external operations.
type Dependencies struct {
	DB          handler.DBPinger
	Objects     handler.ObjectPinger
	Bucket      string
	FrontendURL string
	Version     string
	Metrics     *middleware.Metrics
	MetricsReg  *prometheus.Registry

	Ingester  handler.Ingester
	Retriever handler.Retriever
	Embedder  handler.Embedder
	DocCRUD   handler.DocCRUDDeps
}

// New creates and configures the Chi router with all routes.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	// Health is public — used by load balancers and uptime checks.
	r.Get("/api/health", handler.Health(deps.DB, deps.Objects, deps.Bucket, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.ResolveIdentity)

		timeout30s := middleware.Timeout(30 * time.Second)
		// Upload runs the full ingestion pipeline (extract, chunk, embed,
		// commit) and so gets a longer write timeout than the other routes.
		timeout120s := middleware.Timeout(120 * time.Second)

		r.With(timeout120s).Post("/api/documents", handler.Upload(deps.Ingester))
		r.With(timeout30s).Get("/api/documents", handler.ListDocuments(deps.DocCRUD))
		r.With(timeout30s).Get("/api/documents/{id}", handler.GetDocument(deps.DocCRUD))
		r.With(timeout30s).Delete("/api/documents/{id}", handler.DeleteByID(deps.DocCRUD))
		r.With(timeout30s).Delete("/api/documents/by-hash/{hash}", handler.DeleteByContentHash(deps.DocCRUD))

		r.With(timeout30s).Post("/api/query", handler.Query(deps.Retriever))
		r.With(timeout30s).Post("/api/embed", handler.Embed(deps.Embedder))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
