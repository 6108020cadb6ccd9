package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Simulator runs one conversation turn without a transport.
type Simulator interface {
	Simulate(ctx context.Context, phone, text string) (conversation.SimulateResult, error)
}

// SimulateRequest is the body of POST /simulate.
type SimulateRequest struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// SimulateHandler exposes the engine for manual testing.
type SimulateHandler struct {
	sim    Simulator
	logger *logging.Logger
}

func NewSimulateHandler(sim Simulator, logger *logging.Logger) *SimulateHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SimulateHandler{sim: sim, logger: logger}
}

// ServeHTTP handles POST /simulate.
func (h *SimulateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req SimulateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Phone, req.Text = strings.TrimSpace(req.Phone), strings.TrimSpace(req.Text)
	if req.Phone == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "phone and text are required")
		return
	}
	res, err := h.sim.Simulate(r.Context(), req.Phone, req.Text)
	if err != nil {
		h.logger.Error("simulate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
