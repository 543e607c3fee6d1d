package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/miswired/esp32-radar-sub000/internal/auth"
	"github.com/miswired/esp32-radar-sub000/internal/config"
	"github.com/miswired/esp32-radar-sub000/internal/status"
)

// maxBody caps request bodies; the largest valid patch is well under it.
const maxBody = 8 << 10

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, status.BuildStatus(s.tracker.Snapshot()))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, status.BuildDiagnostics(s.tracker.Snapshot()))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildLogs(s.logs))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.device.Config(r.Context())
	if err != nil {
		writeResult(w, http.StatusServiceUnavailable, false, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg.Public())
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var p config.Patch
	if err := decode(w, r, &p); err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid JSON payload")
		return
	}
	res, err := s.device.UpdateConfig(r.Context(), p)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			writeResult(w, http.StatusBadRequest, false, verr.Error())
			return
		}
		writeResult(w, http.StatusInternalServerError, false, err.Error())
		return
	}
	msg := "configuration saved"
	switch {
	case !res.Changed:
		msg = "no changes"
	case res.RestartRequired:
		msg = "configuration saved, restarting to apply WiFi settings"
	}
	restart := res.RestartRequired
	writeJSON(w, http.StatusOK, resultBody{Success: true, Message: msg, RestartRequired: &restart})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.device.FactoryReset(r.Context()); err != nil {
		writeResult(w, http.StatusInternalServerError, false, err.Error())
		return
	}
	clearSessionCookie(w)
	writeResult(w, http.StatusOK, true, "factory reset, restarting")
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.device.TestNotification(r.Context()); err != nil {
		writeResult(w, http.StatusOK, false, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "test notification sent")
}

func (s *Server) handleTestWLED(w http.ResponseWriter, r *http.Request) {
	if err := s.device.TestWLED(r.Context()); err != nil {
		writeResult(w, http.StatusOK, false, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "WLED payload sent")
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.device.AuthStatus(r.Context(), sessionFrom(r))
	if err != nil {
		writeResult(w, http.StatusServiceUnavailable, false, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type setupRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decode(w, r, &req); err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid JSON payload")
		return
	}
	sess, err := s.device.Setup(r.Context(), req.Password, req.Confirm)
	switch {
	case errors.Is(err, auth.ErrAlreadyConfigured):
		writeResult(w, http.StatusConflict, false, "password already configured")
		return
	case errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, auth.ErrPasswordMismatch):
		writeResult(w, http.StatusBadRequest, false, err.Error())
		return
	case err != nil:
		writeResult(w, http.StatusInternalServerError, false, err.Error())
		return
	}
	setSessionCookie(w, sess)
	writeResult(w, http.StatusOK, true, "password configured")
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid JSON payload")
		return
	}
	sess, err := s.device.Login(r.Context(), req.Password)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		writeResult(w, http.StatusBadRequest, false, "password not configured")
		return
	case errors.Is(err, auth.ErrInvalidPassword):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid password", Code: http.StatusUnauthorized})
		return
	case err != nil:
		writeResult(w, http.StatusInternalServerError, false, err.Error())
		return
	}
	setSessionCookie(w, sess)
	writeResult(w, http.StatusOK, true, "logged in")
}

// handleLogout ends the session only when the caller holds it.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st, err := s.device.AuthStatus(r.Context(), sessionFrom(r))
	if err == nil && st.Authenticated {
		err = s.device.Logout(r.Context())
	}
	if err != nil {
		writeResult(w, http.StatusServiceUnavailable, false, err.Error())
		return
	}
	clearSessionCookie(w)
	writeResult(w, http.StatusOK, true, "logged out")
}

func (s *Server) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		writeResult(w, http.StatusInternalServerError, false, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"apiKey": key})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
}
