package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/andrestor94/pliegos-ai/internal/parser"
	"github.com/andrestor94/pliegos-ai/internal/pipeline"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	// Limit total request size; extra 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("upload exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	if len(headers) > s.cfg.MaxFilesPerRequest {
		jsonError(w, fmt.Sprintf("too many files: %d (max %d)", len(headers), s.cfg.MaxFilesPerRequest), http.StatusBadRequest)
		return
	}

	var (
		files []parser.SourceFile
		total int64
	)
	for _, fh := range headers {
		f, err := s.readUpload(fh)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		total += int64(len(f.Data))
		if total > s.cfg.MaxUploadBytes {
			jsonError(w, fmt.Sprintf("upload exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		files = append(files, f)
	}

	job := pipeline.NewJob(strings.TrimSpace(r.FormValue("output_name")), strings.TrimSpace(r.FormValue("title")), files)
	if err := s.dispatcher.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"files":    job.Files,
		"poll_url": fmt.Sprintf("/api/analyze/%s/status", job.ID),
	})
}

func (s *Server) readUpload(fh *multipart.FileHeader) (parser.SourceFile, error) {
	name := sanitizeFilename(fh.Filename)
	if !parser.IsSupportedExtension(name) {
		s.log.Info("no dedicated extractor, decoding as text", "file", name)
	}
	f, err := fh.Open()
	if err != nil {
		return parser.SourceFile{}, fmt.Errorf("%s: failed to open file", name)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return parser.SourceFile{}, fmt.Errorf("%s: failed to read file", name)
	}
	if len(data) == 0 {
		return parser.SourceFile{}, fmt.Errorf("%s: file is empty", name)
	}
	return parser.SourceFile{Name: name, MIME: fh.Header.Get("Content-Type"), Data: data}, nil
}

func (s *Server) handleAnalyzeStatus(w http.ResponseWriter, r *http.Request) {
	job := s.dispatcher.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// finishedOutcome writes the error response and returns nil unless the job
// has produced a report.
func (s *Server) finishedOutcome(w http.ResponseWriter, r *http.Request) *pipeline.Outcome {
	job := s.dispatcher.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return nil
	}
	if out := job.Outcome(); out != nil && out.PDFPath != "" {
		return out
	}
	snap := job.Snapshot()
	if snap.Status == pipeline.StatusFailed {
		msg := "job failed"
		if len(snap.Progress.Errors) > 0 {
			msg = snap.Progress.Errors[len(snap.Progress.Errors)-1]
		}
		jsonError(w, msg, http.StatusUnprocessableEntity)
		return nil
	}
	jsonError(w, fmt.Sprintf("report not ready (status %s)", snap.Status), http.StatusConflict)
	return nil
}

func (s *Server) handleJobReport(w http.ResponseWriter, r *http.Request) {
	out := s.finishedOutcome(w, r)
	if out == nil {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, out.Report)
}

func (s *Server) handleJobPDF(w http.ResponseWriter, r *http.Request) {
	out := s.finishedOutcome(w, r)
	if out == nil {
		return
	}
	servePDF(w, r, out.PDFPath)
}

func servePDF(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		jsonError(w, "report file unavailable", http.StatusGone)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		jsonError(w, "report file unavailable", http.StatusGone)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Browsers on Windows may send the full client path.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
