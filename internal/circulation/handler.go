// internal/circulation/handler.go
package circulation

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/httpx"
	"unilib/internal/paging"
)

type Handler struct {
	service Service
	perPage int
	log     logrus.FieldLogger
}

// NewHandler serves loans. perPage is the listing page size used when the
// request does not set one.
func NewHandler(service Service, perPage int, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, perPage: perPage, log: log}
}

// HandleCreateLoan serves POST /loans.
func (h *Handler) HandleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": loan})
}

// HandleRecentLoans serves GET /loans?limit=.
func (h *Handler) HandleRecentLoans(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecent
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, r, h.log, apperr.Invalid("limit must be an integer"))
			return
		}
		limit = n
	}

	loans, err := h.service.RecentLoans(r.Context(), limit)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": loans})
}

// HandleListLoans serves GET /loans/all?page&perPage&statut&nom&date.
func (h *Handler) HandleListLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := paging.FromQuery(q, h.perPage)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	result, err := h.service.ListLoans(r.Context(), LoanFilter{
		Status:  q.Get("statut"),
		Student: q.Get("nom"),
		Day:     q.Get("date"),
	}, page)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*LoanPage
	}{true, result})
}

// HandleSearchOpenLoans serves GET /loans/search?query=.
func (h *Handler) HandleSearchOpenLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.SearchOpenLoans(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

// HandleReturnLoan serves POST /loans/{id}/return. The body is optional.
func (h *Handler) HandleReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	var req ReturnLoanInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, h.log, err)
			return
		}
	}

	loan, err := h.service.ReturnLoan(r.Context(), auth.PrincipalFrom(r.Context()), id, req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Le livre %q a été marqué comme retourné", loan.Book.Title),
		"loan":    loan,
	})
}

// HandleLoanHistory serves GET /loans/{id}/history.
func (h *Handler) HandleLoanHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	events, err := h.service.LoanHistory(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": events})
}

func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Invalid("invalid loan id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}
