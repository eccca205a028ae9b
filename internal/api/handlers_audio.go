package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docaudio/internal/audio"
	"github.com/dgallion1/docaudio/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

// handleJobAudio streams the merged audiobook of a finished job.
func (s *Server) handleJobAudio(w http.ResponseWriter, r *http.Request) {
	job := s.queue.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	status, path := job.State()
	if !status.HasAudio() {
		jsonError(w, fmt.Sprintf("job is %s, no audio available", status), http.StatusConflict)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.log.Error("open job audio", "job_id", job.ID, "error", err)
		jsonError(w, "audio file unavailable", http.StatusGone)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		jsonError(w, "audio file unavailable", http.StatusGone)
		return
	}

	snap := job.Snapshot()
	contentType := "audio/mpeg"
	if snap.Settings.Format == audio.WAV {
		contentType = "audio/wav"
	}
	name := downloadName(snap.Title, filepath.Ext(path))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	err := s.queue.Delete(chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		jsonError(w, "job not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrJobRunning):
		jsonError(w, err.Error(), http.StatusConflict)
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// downloadName builds an ASCII-safe attachment name from the job title.
func downloadName(title, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.':
			return '_'
		}
		return -1
	}, title)
	if name == "" {
		name = "audiobook"
	}
	return name + ext
}
