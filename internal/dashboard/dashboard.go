// Package dashboard serves the counters and series shown on the manager
// dashboard.
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
	"unilib/internal/attendance"
	"unilib/internal/httpx"
)

// Stats are the headline counters. Open loans are split against a single
// instant.
type Stats struct {
	TotalLivres      int `json:"totalLivres" db:"total_livres"`
	EmpruntsEnCours  int `json:"empruntsEnCours" db:"en_cours"`
	EmpruntsEnRetard int `json:"empruntsEnRetard" db:"en_retard"`
}

// PresenceCounter produces the daily presence series.
type PresenceCounter interface {
	DailyCounts(ctx context.Context, start, end string) ([]attendance.DayCount, error)
}

type Service struct {
	db        *sqlx.DB
	presences PresenceCounter
	now       func() time.Time
}

func NewService(db *sqlx.DB, presences PresenceCounter) *Service {
	return &Service{db: db, presences: presences, now: time.Now}
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM books) AS total_livres,
			COUNT(*) FILTER (WHERE due_at >= $1) AS en_cours,
			COUNT(*) FILTER (WHERE due_at < $1) AS en_retard
		FROM loans
		WHERE returned_at IS NULL
	`, s.now())
	if err != nil {
		return nil, apperr.Internal(err, "failed to compute dashboard stats")
	}
	return &stats, nil
}

func (s *Service) PresenceSeries(ctx context.Context, start, end string) ([]attendance.DayCount, error) {
	return s.presences.DailyCounts(ctx, start, end)
}

type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

func NewHandler(service *Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

// HandleUsersStats serves GET /usersStats.
func (h *Handler) HandleUsersStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": stats})
}

// HandleStats serves GET /stats?start&end.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	series, err := h.service.PresenceSeries(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, series)
}
