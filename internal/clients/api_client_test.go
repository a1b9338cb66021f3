package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unilib/internal/circulation"
)

func TestAPIClient(t *testing.T) {
	loanID := uuid.New()
	var lastAuth, lastQuery string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"message":"ok","token":"tok-123"}`))
	})
	mux.HandleFunc("POST /api/loans", func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
		var in circulation.CreateLoanInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    circulation.LoanSummary{ID: loanID, Matricule: in.Matricule, LivreTitre: in.Livre},
		})
	})
	mux.HandleFunc("POST /api/loans/{id}/return", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"book \"B1\" was already returned"}`))
	})
	mux.HandleFunc("GET /api/loans/all", func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.RawQuery
		w.Write([]byte(`{"success":true,"data":[],"total":0,"page":2,"perPage":5,"totalPages":0}`))
	})
	mux.HandleFunc("POST /api/presence", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"matricule":"ETU002","heure":"09:00:00"}}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewAPIClient(srv.URL+"/", "")

	_, err := c.Login(ctx, "admin@univ.test", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid credentials", apiErr.Message)

	token, err := c.Login(ctx, "admin@univ.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	loan, err := c.CreateLoan(ctx, circulation.CreateLoanInput{Matricule: "ETU001", Livre: "B1", DateRetourPrevue: "2030-01-01"})
	require.NoError(t, err)
	assert.Equal(t, loanID, loan.ID)
	assert.Equal(t, "Bearer tok-123", lastAuth)

	_, err = c.ReturnLoan(ctx, loanID, circulation.ReturnLoanInput{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	page, err := c.ListLoans(ctx, circulation.LoanFilter{Status: "En retard", Student: "dia"}, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, "nom=dia&page=2&perPage=5&statut=En+retard", lastQuery)

	presence, err := c.RecordPresence(ctx, "ETU002")
	require.NoError(t, err)
	assert.Equal(t, "09:00:00", presence.Heure)
}
