// Package handlers implements the admin and simulation HTTP endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health answers liveness probes.
// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dateRange reads from/to (YYYY-MM-DD, clinic time zone) from the query. to is
// inclusive; the returned end is the start of the following day.
func dateRange(r *http.Request, loc *time.Location, defFrom, defTo time.Time) (time.Time, time.Time, bool) {
	from, to := defFrom, defTo
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.ParseInLocation(storage.DateLayout, v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.ParseInLocation(storage.DateLayout, v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		to = t.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
