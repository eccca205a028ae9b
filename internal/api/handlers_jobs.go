package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/docaudio/internal/audio"
	"github.com/dgallion1/docaudio/internal/parser"
	"github.com/dgallion1/docaudio/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	settings, err := s.settingsFromForm(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	job, err := s.queue.Stage(filename, title, data, settings)
	if err != nil {
		s.log.Error("stage upload", "filename", filename, "error", err)
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	if err := s.queue.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/jobs/%s/status", job.ID),
	})
}

// settingsFromForm applies optional per-job overrides to the configured
// defaults.
func (s *Server) settingsFromForm(r *http.Request) (pipeline.Settings, error) {
	format, err := audio.ParseFormat(s.cfg.OutputFormat)
	if err != nil {
		return pipeline.Settings{}, err
	}
	set := pipeline.Settings{
		Language:     s.cfg.TTS.Language,
		ChunkSize:    s.cfg.ChunkSize,
		ChunkOverlap: s.cfg.Overlap(),
		Format:       format,
	}

	if v := r.FormValue("language"); v != "" {
		set.Language = v
	}
	if v := r.FormValue("chunk_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return set, fmt.Errorf("chunk_size must be a positive integer")
		}
		set.ChunkSize = n
		set.ChunkOverlap = n / 10
	}
	if v := r.FormValue("overlap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return set, fmt.Errorf("overlap must be a non-negative integer")
		}
		set.ChunkOverlap = n
	}
	if v := r.FormValue("format"); v != "" {
		f, err := audio.ParseFormat(v)
		if err != nil {
			return set, err
		}
		set.Format = f
	}
	return set, nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.queue.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.queue.List()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Clients may send Windows paths.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
