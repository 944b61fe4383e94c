package reminder

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// Handler exposes a manual scan trigger for operators.
type Handler struct {
	scanner *Scanner
	logger  *logging.Logger
}

func NewHandler(scanner *Scanner, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{scanner: scanner, logger: logger}
}

// TriggerScan handles POST /admin/reminders/scan.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanner.Scan(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Error("manual reminder scan failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "reminder scan failed"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}
