package attendance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"unilib/internal/apperr"
	"unilib/internal/auth"
)

func TestZeroFill(t *testing.T) {
	first := time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	got := zeroFill(first, last, map[string]int{"2024-01-31": 4, "2024-02-02": 1})
	assert.Equal(t, []DayCount{
		{Date: "2024-01-30", Count: 0},
		{Date: "2024-01-31", Count: 4},
		{Date: "2024-02-01", Count: 0},
		{Date: "2024-02-02", Count: 1},
	}, got)

	assert.Equal(t, []DayCount{{Date: "2024-01-30"}}, zeroFill(first, first, nil))
}

func TestZeroFillCoversEveryDay(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		first := time.Date(2024, 1, 1, 0, 0, 0, 0, paris).AddDate(0, 0, rapid.IntRange(0, 365).Draw(t, "offset"))
		span := rapid.IntRange(0, MaxSeriesDays-1).Draw(t, "span")
		last := first.AddDate(0, 0, span)

		got := zeroFill(first, last, nil)
		if len(got) != span+1 {
			t.Fatalf("got %d days, want %d", len(got), span+1)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Date <= got[i-1].Date {
				t.Fatalf("days out of order: %s then %s", got[i-1].Date, got[i].Date)
			}
		}
	})
}

func TestDailyCountsValidation(t *testing.T) {
	log, _ := test.NewNullLogger()
	svc := NewService(nil, nil, time.UTC, log)
	ctx := context.Background()

	for _, tc := range [][2]string{
		{"", "2024-01-02"},
		{"2024-01-02", ""},
		{"2024-01-10", "2024-01-09"},
		{"2024-01-01", "2025-01-02"},
		{"01/01/2024", "2024-01-02"},
	} {
		_, err := svc.DailyCounts(ctx, tc[0], tc[1])
		assert.True(t, apperr.Is(err, apperr.KindInvalid), "%v: %v", tc, err)
	}
}

func TestRecordPresenceValidation(t *testing.T) {
	log, _ := test.NewNullLogger()
	svc := NewService(nil, nil, time.UTC, log)
	ctx := context.Background()

	_, err := svc.RecordPresence(ctx, auth.Principal{}, "ETU001")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.RecordPresence(ctx, auth.Principal{UserID: uuid.New(), Role: auth.RoleLibrarian}, "  ")
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}

type stubService struct {
	Service
	filter    PresenceFilter
	matricule string
}

func (s *stubService) RecordPresence(_ context.Context, _ auth.Principal, matricule string) (*Presence, error) {
	s.matricule = matricule
	return &Presence{ID: uuid.New(), Matricule: matricule, Heure: "09:00:00"}, nil
}

func (s *stubService) ListPresences(_ context.Context, f PresenceFilter) ([]PresenceRow, error) {
	s.filter = f
	return []PresenceRow{{ID: uuid.New()}, {ID: uuid.New()}}, nil
}

func TestHandlers(t *testing.T) {
	log, _ := test.NewNullLogger()
	svc := &stubService{}
	h := NewHandler(svc, log)

	rec := httptest.NewRecorder()
	h.HandleRecordPresence(rec, httptest.NewRequest(http.MethodPost, "/api/presence", strings.NewReader(`{"matricule":"ETU002"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ETU002", svc.matricule)

	rec = httptest.NewRecorder()
	h.HandleListPresences(rec, httptest.NewRequest(http.MethodGet, "/api/presence?date=2024-01-15&heure=9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, PresenceFilter{Day: "2024-01-15", Hour: "9"}, svc.filter)

	var body struct {
		Success bool          `json:"success"`
		Data    []PresenceRow `json:"data"`
		Count   int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Data, 2)

	rec = httptest.NewRecorder()
	h.HandleRecordPresence(rec, httptest.NewRequest(http.MethodPost, "/api/presence", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
