package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/miswired/esp32-radar-sub000/internal/auth"
	"github.com/miswired/esp32-radar-sub000/internal/logger"
)

const (
	apiKeyHeader  = "X-API-Key"
	apiKeyQuery   = "api_key"
	sessionCookie = "session"
)

// RequestLogger logs each request at debug level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Debugf("http: %s %s %d %dB %dms [%s]",
			r.Method, r.URL.Path, wrapped.statusCode, wrapped.size,
			time.Since(startedAt).Milliseconds(), middleware.GetReqID(r.Context()))
	})
}

// RecoverJSON converts a handler panic into a JSON 500.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				logger.Errorf("http: panic on %s: %v", r.URL.Path, recovered)
				writeJSON(w, http.StatusInternalServerError, errorBody{
					Error: "internal server error",
					Code:  http.StatusInternalServerError,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth admits the request on a valid session cookie or an accepted
// API key.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.device.Authorize(r.Context(), apiKeyFrom(r), sessionFrom(r))
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}
		var aerr *auth.Error
		if errors.As(err, &aerr) {
			writeAuthError(w, aerr)
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: http.StatusServiceUnavailable})
	})
}

func apiKeyFrom(r *http.Request) string {
	if k := r.Header.Get(apiKeyHeader); k != "" {
		return k
	}
	return r.URL.Query().Get(apiKeyQuery)
}

func sessionFrom(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func setSessionCookie(w http.ResponseWriter, s auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (w *responseCapture) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseCapture) Write(body []byte) (int, error) {
	size, err := w.ResponseWriter.Write(body)
	w.size += size
	return size, err
}
