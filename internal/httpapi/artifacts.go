package httpapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		respondError(w, http.StatusBadRequest, "invalid_artifact_index", "artifact index must be a non-negative integer")
		return
	}
	path, ok := s.sessions.ArtifactPath(index)
	if !ok {
		respondError(w, http.StatusNotFound, "artifact_not_found", "no audio for this turn")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(w, http.StatusNotFound, "artifact_not_found", "audio was cleaned up")
			return
		}
		s.logger.Warn("open artifact", zap.String("path", path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "artifact_unreadable", "audio could not be read")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "artifact_unreadable", "audio could not be read")
		return
	}

	w.Header().Set("Content-Type", artifactContentType(path))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func artifactContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
