// internal/server/router.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"unilib/internal/attendance"
	"unilib/internal/auth"
	"unilib/internal/catalog"
	"unilib/internal/circulation"
	"unilib/internal/dashboard"
	"unilib/internal/httpx"
	"unilib/internal/logging"
	"unilib/internal/membership"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Membership  *membership.Handler
	Catalog     *catalog.Handler
	Circulation *circulation.Handler
	Attendance  *attendance.Handler
	Dashboard   *dashboard.Handler
	// Covers serves uploaded files below /uploads.
	Covers http.Handler
	DB     Pinger
}

// NewRouter wires the API under /api. Reads of the catalog are public;
// every write and every management read needs a manager token.
func NewRouter(h Handlers, authn *auth.Middleware, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(h.DB, log))
	if h.Covers != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads", h.Covers))
	}

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Post("/register", h.Membership.HandleRegister)
		r.Post("/login", h.Membership.HandleLogin)
		r.Post("/logout", h.Membership.HandleLogout)
		r.Get("/filieres", h.Membership.HandleFilieres)
		r.Get("/niveaux", h.Membership.HandleNiveaux)
		r.Get("/home", h.Catalog.HandleHome)
		r.Get("/search/livres", h.Catalog.HandleSearch)
		r.Get("/books", h.Catalog.HandleListBooks)
		r.Get("/books/{id}", h.Catalog.HandleGetBook)
		r.Get("/authors", h.Catalog.HandleListAuthors)
		r.Get("/authors/{id}", h.Catalog.HandleGetAuthor)
		r.Get("/categories", h.Catalog.HandleListCategories)
		r.Get("/categories/{id}", h.Catalog.HandleGetCategory)

		r.Group(func(r chi.Router) {
			r.Use(authn.Authenticate)
			r.Get("/me", h.Membership.HandleMe)

			r.Group(func(r chi.Router) {
				r.Use(authn.RequireRole(auth.ManagerRoles...))

				r.Get("/search/students", h.Membership.HandleSearchStudents)

				r.Post("/books", h.Catalog.HandleCreateBook)
				r.Put("/books/{id}", h.Catalog.HandleUpdateBook)
				r.Delete("/books/{id}", h.Catalog.HandleDeleteBook)
				r.Post("/authors", h.Catalog.HandleCreateAuthor)
				r.Put("/authors/{id}", h.Catalog.HandleUpdateAuthor)
				r.Delete("/authors/{id}", h.Catalog.HandleDeleteAuthor)
				r.Post("/categories", h.Catalog.HandleCreateCategory)
				r.Put("/categories/{id}", h.Catalog.HandleUpdateCategory)
				r.Delete("/categories/{id}", h.Catalog.HandleDeleteCategory)

				r.Post("/loans", h.Circulation.HandleCreateLoan)
				r.Get("/loans", h.Circulation.HandleRecentLoans)
				r.Get("/loans/all", h.Circulation.HandleListLoans)
				r.Get("/loans/search", h.Circulation.HandleSearchOpenLoans)
				r.Post("/loans/{id}/return", h.Circulation.HandleReturnLoan)
				r.Get("/loans/{id}/history", h.Circulation.HandleLoanHistory)

				r.Post("/presence", h.Attendance.HandleRecordPresence)
				r.Get("/presence", h.Attendance.HandleListPresences)

				r.Get("/stats", h.Dashboard.HandleStats)
				r.Get("/usersStats", h.Dashboard.HandleUsersStats)
			})
		})
	})

	return otelhttp.NewHandler(r, "unilib",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func healthz(db Pinger, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			log.WithError(err).Warn("health check failed")
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
