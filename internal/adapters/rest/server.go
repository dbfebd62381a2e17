package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"listing-ingest-service/internal/core/domain"
)

// ReportSource exposes the latest run report for the operator surface.
type ReportSource interface {
	LastReport() (domain.RunReport, bool)
}

// NewRouter builds the operational HTTP surface: liveness and the
// latest run report. The product API is a different system.
func NewRouter(reports ReportSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/report", func(w http.ResponseWriter, req *http.Request) {
		report, ok := reports.LastReport()
		if !ok {
			http.Error(w, `{"error":"no completed runs yet"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})

	return r
}
