package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unilib/internal/attendance"
	"unilib/internal/auth"
	"unilib/internal/catalog"
	"unilib/internal/circulation"
	"unilib/internal/clients"
	"unilib/internal/dashboard"
	"unilib/internal/database/dbtest"
	"unilib/internal/eventstore"
	"unilib/internal/membership"
	"unilib/internal/storage"
)

// TestCheckoutFlow drives the assembled API over HTTP: manager login,
// presence scan, checkout, listing and return.
func TestCheckoutFlow(t *testing.T) {
	db := dbtest.Open(t, "server")
	dbtest.Reset(t, db)

	log, _ := test.NewNullLogger()
	tokens := auth.NewTokenManager("flow-secret", time.Hour)
	authn := auth.NewMiddleware(tokens, auth.CookieOptions{}, log)
	es := eventstore.NewEventStore(db)
	covers := storage.NewCoverStoreFs(afero.NewMemMapFs())
	members := membership.NewService(db, es, tokens, membership.NewLimiter(0, 0), log)
	presences := attendance.NewService(db, es, time.UTC, log)

	srv := httptest.NewServer(NewRouter(Handlers{
		Membership:  membership.NewHandler(members, authn, log),
		Catalog:     catalog.NewHandler(catalog.NewService(db, covers, log), 1<<20, log),
		Circulation: circulation.NewHandler(circulation.NewService(db, es, time.UTC, log), 10, log),
		Attendance:  attendance.NewHandler(presences, log),
		Dashboard:   dashboard.NewHandler(dashboard.NewService(db, presences), log),
		Covers:      covers.Handler(),
		DB:          db,
	}, authn, log))
	defer srv.Close()

	ctx := context.Background()
	_, err := members.Register(ctx, membership.RegisterInput{
		Email: "bibliothecaire@univ.cm", Password: "secret123", Nom: "Mbarga", Prenom: "Lucie",
		Telephone: "677000222", Role: auth.RoleManager,
	})
	require.NoError(t, err)
	dbtest.Student(t, db, "ETU001", "Diallo", "Aminata")
	bookID := dbtest.Book(t, db, "Things Fall Apart", "9780435905255")

	api := clients.NewAPIClient(srv.URL, "")

	_, err = api.RecordPresence(ctx, "ETU001")
	var apiErr *clients.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = api.Login(ctx, "bibliothecaire@univ.cm", "secret123")
	require.NoError(t, err)

	presence, err := api.RecordPresence(ctx, "ETU001")
	require.NoError(t, err)
	assert.Equal(t, "ETU001", presence.Matricule)

	loan, err := api.CreateLoan(ctx, circulation.CreateLoanInput{
		Matricule: "ETU001", Livre: "9780435905255", DateRetourPrevue: "2099-12-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "Things Fall Apart", loan.LivreTitre)
	assert.False(t, dbtest.Available(t, db, bookID))

	_, err = api.CreateLoan(ctx, circulation.CreateLoanInput{
		Matricule: "ETU001", Livre: "9780435905255", DateRetourPrevue: "2099-12-31",
	})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	page, err := api.ListLoans(ctx, circulation.LoanFilter{Status: string(circulation.StatusOngoing)}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, loan.ID, page.Data[0].ID)

	msg, err := api.ReturnLoan(ctx, loan.ID, circulation.ReturnLoanInput{})
	require.NoError(t, err)
	assert.Contains(t, msg, "Things Fall Apart")
	assert.True(t, dbtest.Available(t, db, bookID))

	_, err = api.ReturnLoan(ctx, loan.ID, circulation.ReturnLoanInput{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	dbtest.AssertAvailabilityInvariant(t, db)
}
