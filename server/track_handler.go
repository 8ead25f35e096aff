package server

import (
	"encoding/json"
	"net/http"

	"EchoFM/logger"
	"EchoFM/repository"
)

// TrackHandler 曲目目录 HTTP 处理器
type TrackHandler struct {
	tracks repository.TrackRepository
}

// NewTrackHandler 创建曲目处理器
func NewTrackHandler(tracks repository.TrackRepository) *TrackHandler {
	return &TrackHandler{tracks: tracks}
}

// ListTracksHandler 返回全部曲目
// GET /api/tracks
func (h *TrackHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.tracks.ListTracks(r.Context())
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err))
		http.Error(w, "failed to list tracks", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tracks)
}
