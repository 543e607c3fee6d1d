package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/miswired/esp32-radar-sub000/internal/auth"
	"github.com/miswired/esp32-radar-sub000/internal/eventlog"
)

// errorBody is the auth and transport error shape.
type errorBody struct {
	Error      string `json:"error"`
	Code       int    `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// resultBody is the shape of every mutating endpoint's reply.
type resultBody struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	RestartRequired *bool  `json:"restartRequired,omitempty"`
}

// LogEntryJSON is one line of GET /logs.
type LogEntryJSON struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// LogsJSON is the GET /logs body.
type LogsJSON struct {
	Entries []LogEntryJSON `json:"entries"`
	Dropped uint64         `json:"dropped"`
}

func buildLogs(r *eventlog.Ring) LogsJSON {
	out := LogsJSON{Entries: []LogEntryJSON{}}
	if r == nil {
		return out
	}
	for _, e := range r.Entries() {
		out.Entries = append(out.Entries, LogEntryJSON{
			Time:    e.Time.UTC().Format(time.RFC3339),
			Level:   e.Level,
			Message: e.Message,
		})
	}
	out.Dropped = r.Dropped()
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, code int, success bool, msg string) {
	writeJSON(w, code, resultBody{Success: success, Message: msg})
}

func writeAuthError(w http.ResponseWriter, e *auth.Error) {
	body := errorBody{Error: e.Message, Code: e.Code, RetryAfter: e.RetryAfterSeconds()}
	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	writeJSON(w, e.Code, body)
}
