// internal/attendance/handler.go
package attendance

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"unilib/internal/auth"
	"unilib/internal/httpx"
)

type Handler struct {
	service Service
	log     logrus.FieldLogger
}

func NewHandler(service Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

// HandleRecordPresence serves POST /presence.
func (h *Handler) HandleRecordPresence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Matricule string `json:"matricule"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	presence, err := h.service.RecordPresence(r.Context(), auth.PrincipalFrom(r.Context()), req.Matricule)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": presence})
}

// HandleListPresences serves GET /presence?date&heure.
func (h *Handler) HandleListPresences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.service.ListPresences(r.Context(), PresenceFilter{Day: q.Get("date"), Hour: q.Get("heure")})
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    rows,
		"count":   len(rows),
	})
}
