package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/media"
	"github.com/patrickwarner/civicreport/internal/token"
)

// SignedMediaHandler streams an object named by a signed link token.
func (s *Server) SignedMediaHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "signed_media"
	method := r.Method

	if s.Signer == nil {
		http.NotFound(w, r)
		s.observe(endpoint, method, http.StatusNotFound, start)
		return
	}
	key, err := s.Signer.Verify(mux.Vars(r)["token"])
	switch {
	case errors.Is(err, token.ErrExpired):
		writeError(w, http.StatusForbidden, "link expired")
		s.observe(endpoint, method, http.StatusForbidden, start)
		return
	case err != nil:
		writeError(w, http.StatusForbidden, "invalid link")
		s.observe(endpoint, method, http.StatusForbidden, start)
		return
	}

	obj, err := s.Media.Open(r.Context(), key)
	if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidKey) {
		http.NotFound(w, r)
		s.observe(endpoint, method, http.StatusNotFound, start)
		return
	}
	if err != nil {
		s.logger(r).Error("open signed media", zap.String("key", key), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	media.ServeObject(w, r, key, obj)
	s.observe(endpoint, method, http.StatusOK, start)
}
