// Package statusserver exposes the tracker's last report and persisted
// snapshot over HTTP.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
	"github.com/KevinXing/ilive-tracker/go/tracker"
)

type ReportSource interface {
	LastReport() (tracker.Report, bool)
}

type SnapshotSource interface {
	Load(ctx context.Context) (crawler.Snapshot, error)
}

type Server struct {
	httpServer *http.Server
	reports    ReportSource
	snapshots  SnapshotSource
	logger     *slog.Logger
}

func New(addr string, reports ReportSource, snapshots SnapshotSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{reports: reports, snapshots: snapshots, logger: logger}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/report", s.handleReport)
	r.Get("/apartments", s.handleApartments)
	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting status server", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.Wrapf(err, "status server on %s", s.httpServer.Addr)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping status server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.reports.LastReport()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no check has run yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleApartments lists the persisted snapshot sorted by id, optionally
// filtered with ?status=free|reserved|occupied|unknown.
func (s *Server) handleApartments(w http.ResponseWriter, r *http.Request) {
	var status crawler.Status
	if q := r.URL.Query().Get("status"); q != "" {
		status = crawler.ParseStatus(q)
		if string(status) != q {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + q})
			return
		}
	}

	snapshot, err := s.snapshots.Load(r.Context())
	if err != nil {
		s.logger.Error("load snapshot for status server", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load state"})
		return
	}

	apts := make([]*crawler.Apartment, 0, len(snapshot))
	if status != "" {
		apts = append(apts, snapshot.WithStatus(status)...)
	} else {
		for _, id := range snapshot.IDs() {
			apts = append(apts, snapshot[id])
		}
	}
	writeJSON(w, http.StatusOK, apts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
