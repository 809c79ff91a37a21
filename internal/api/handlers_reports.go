package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andrestor94/pliegos-ai/internal/history"
)

// handleListReports lists stored analyses, newest first, without report text.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		jsonError(w, "report history unavailable", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			jsonError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := s.reports.List(r.Context(), limit)
	if err != nil {
		s.log.Error("listing reports", "error", err)
		jsonError(w, "failed to list reports", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []history.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"reports": list})
}

// handleGetReport returns one stored analysis. With ?format=pdf the rendered
// file is served instead of the record.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		jsonError(w, "report history unavailable", http.StatusServiceUnavailable)
		return
	}
	rec, err := s.reports.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		jsonError(w, "report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("getting report", "error", err)
		jsonError(w, "failed to get report", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "pdf" {
		servePDF(w, r, rec.PDFPath)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}
