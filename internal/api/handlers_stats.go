package api

import "net/http"

func (s *Server) handleTTSStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "tts stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint": s.cfg.TTS.URL,
		"stats":    s.stats.Snapshot(),
	})
}
