package circulation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/paging"
)

type fakeService struct {
	Service
	actor     auth.Principal
	create    CreateLoanInput
	ret       ReturnLoanInput
	filter    LoanFilter
	page      paging.Request
	limit     int
	returnErr error
}

func (f *fakeService) CreateLoan(_ context.Context, actor auth.Principal, in CreateLoanInput) (*LoanSummary, error) {
	f.actor, f.create = actor, in
	return &LoanSummary{ID: uuid.New(), LivreTitre: "B1", Matricule: in.Matricule}, nil
}

func (f *fakeService) ReturnLoan(_ context.Context, actor auth.Principal, id uuid.UUID, in ReturnLoanInput) (*ReturnedLoan, error) {
	f.actor, f.ret = actor, in
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	return &ReturnedLoan{Loan: Loan{ID: id}, Book: BookRef{Title: "B1"}}, nil
}

func (f *fakeService) ListLoans(_ context.Context, filter LoanFilter, page paging.Request) (*LoanPage, error) {
	f.filter, f.page = filter, page
	return &LoanPage{Data: []LoanRow{}, Total: 25, Page: page.Page, PerPage: page.PerPage, TotalPages: page.TotalPages(25)}, nil
}

func (f *fakeService) RecentLoans(_ context.Context, limit int) ([]LoanSummary, error) {
	f.limit = limit
	return []LoanSummary{}, nil
}

func router(svc Service) http.Handler {
	log, _ := test.NewNullLogger()
	h := NewHandler(svc, paging.DefaultPerPage, log)
	manager := auth.Principal{UserID: uuid.New(), Role: auth.RoleManager}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), manager)))
		})
	})
	r.Post("/loans", h.HandleCreateLoan)
	r.Get("/loans", h.HandleRecentLoans)
	r.Get("/loans/all", h.HandleListLoans)
	r.Post("/loans/{id}/return", h.HandleReturnLoan)
	r.Get("/loans/{id}/history", h.HandleLoanHistory)
	return r
}

func TestHandleCreateLoan(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/loans",
		strings.NewReader(`{"matricule":"ETU001","livre":"B1","dateRetourPrevue":"2030-01-10","remarques":"ok"}`))
	router(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, auth.RoleManager, svc.actor.Role)
	assert.Equal(t, "ETU001", svc.create.Matricule)
	assert.Equal(t, "2030-01-10", svc.create.DateRetourPrevue)

	var body struct {
		Success bool        `json:"success"`
		Data    LoanSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "B1", body.Data.LivreTitre)
}

func TestHandleListLoansPassesFilters(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/loans/all?page=2&perPage=10&statut=En+retard&nom=dia&date=2024-01-10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, LoanFilter{Status: "En retard", Student: "dia", Day: "2024-01-10"}, svc.filter)
	assert.Equal(t, paging.Request{Page: 2, PerPage: 10}, svc.page)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 25, body["total"])
	assert.EqualValues(t, 3, body["totalPages"])
	assert.Contains(t, body, "data")
}

func TestHandleListLoansRejectsBadPage(t *testing.T) {
	rec := httptest.NewRecorder()
	router(&fakeService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/loans/all?page=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router(&fakeService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/loans/all?page=9223372036854775807", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecentLoansLimit(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/loans", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultRecent, svc.limit)

	rec = httptest.NewRecorder()
	router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/loans?limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.limit)

	rec = httptest.NewRecorder()
	router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/loans?limit=many", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReturnLoan(t *testing.T) {
	svc := &fakeService{}
	id := uuid.New()

	rec := httptest.NewRecorder()
	router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/loans/"+id.String()+"/return", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ReturnLoanInput{}, svc.ret)

	var body struct {
		Message string `json:"message"`
		Loan    struct {
			ID uuid.UUID `json:"id"`
		} `json:"loan"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, `Le livre "B1" a été marqué comme retourné`, body.Message)
	assert.Equal(t, id, body.Loan.ID)

	rec = httptest.NewRecorder()
	router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/loans/"+id.String()+"/return",
		strings.NewReader(`{"dateRetourEffective":"2024-01-12","remarques":"abîmé"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-12", svc.ret.DateRetourEffective)
	require.NotNil(t, svc.ret.Remarques)
	assert.Equal(t, "abîmé", *svc.ret.Remarques)
}

func TestHandleReturnLoanErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	router(&fakeService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/loans/17/return", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := &fakeService{returnErr: apperr.Conflict("book %q was already returned", "B1")}
	rec = httptest.NewRecorder()
	router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/loans/"+uuid.NewString()+"/return", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc = &fakeService{returnErr: apperr.NotFound("loan not found")}
	rec = httptest.NewRecorder()
	router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/loans/"+uuid.NewString()+"/return", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLoanValidation(t *testing.T) {
	log, _ := test.NewNullLogger()
	svc := NewService(nil, nil, time.UTC, log).(*service)
	svc.now = func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	manager := auth.Principal{UserID: uuid.New(), Role: auth.RoleManager}

	_, err := svc.CreateLoan(ctx, auth.Principal{UserID: uuid.New(), Role: auth.RoleStudent},
		CreateLoanInput{Matricule: "ETU001", Livre: "B1", DateRetourPrevue: "2024-01-20"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = svc.CreateLoan(ctx, manager, CreateLoanInput{Livre: "B1", DateRetourPrevue: "2024-01-20"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInvalid, appErr.Kind)
	assert.Contains(t, appErr.Fields, "matricule")

	_, err = svc.CreateLoan(ctx, manager, CreateLoanInput{Matricule: "ETU001", Livre: "B1", DateRetourPrevue: "2024-01-14"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid), "due date in the past")

	_, err = svc.CreateLoan(ctx, manager, CreateLoanInput{Matricule: "ETU001", Livre: "B1", DateRetourPrevue: "2024-01-15T09:00:00Z"})
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "dateRetourPrevue", "due timestamp earlier today")

	_, err = svc.CreateLoan(ctx, manager, CreateLoanInput{Matricule: "ETU001", Livre: "B1", DateRetourPrevue: "next week"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	_, err = svc.ReturnLoan(ctx, manager, uuid.New(), ReturnLoanInput{DateRetourEffective: "yesterday"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}
