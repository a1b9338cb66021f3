// internal/membership/handler.go
package membership

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/httpx"
)

// Sessions builds the session cookies set on login and logout.
type Sessions interface {
	SessionCookie(token string, expiresAt time.Time) *http.Cookie
	ClearCookie() *http.Cookie
}

type Handler struct {
	service  Service
	sessions Sessions
	log      logrus.FieldLogger
}

func NewHandler(service Service, sessions Sessions, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, sessions: sessions, log: log}
}

type profileResponse struct {
	Type      string    `json:"type"`
	ID        uuid.UUID `json:"id"`
	Matricule string    `json:"matricule,omitempty"`
	Filiere   *Filiere  `json:"filiere,omitempty"`
	Niveau    *Niveau   `json:"niveau,omitempty"`
}

type accountResponse struct {
	User
	Profile profileResponse `json:"profile"`
}

func accountView(a *Account) accountResponse {
	return accountResponse{User: a.User, Profile: profileView(a.Profile)}
}

func profileView(p Profile) profileResponse {
	switch v := p.(type) {
	case StudentProfile:
		return profileResponse{
			Type:      "student",
			ID:        v.ID,
			Matricule: v.Matricule,
			Filiere:   &v.Filiere,
			Niveau:    &v.Niveau,
		}
	case ManagerProfile:
		return profileResponse{Type: "manager", ID: v.ID}
	default:
		panic(fmt.Sprintf("membership: unhandled profile %T", p))
	}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	account, err := h.service.Register(WithClient(r.Context(), r.RemoteAddr), req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "registration successful",
		"user":    accountView(account),
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	session, err := h.service.Authenticate(WithClient(r.Context(), r.RemoteAddr), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	http.SetCookie(w, h.sessions.SessionCookie(session.Token, session.ExpiresAt))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"token":   session.Token,
		"actualUser": map[string]any{
			"userId": session.User.ID,
			"email":  session.User.Email,
			"role":   session.User.Role,
		},
	})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessions.ClearCookie())
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if p.IsZero() {
		httpx.WriteError(w, r, h.log, apperr.Unauthorized("authentication required"))
		return
	}

	account, err := h.service.GetAccount(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, accountView(account))
}

func (h *Handler) HandleSearchStudents(w http.ResponseWriter, r *http.Request) {
	matches, err := h.service.SearchStudents(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, matches)
}

func (h *Handler) HandleFilieres(w http.ResponseWriter, r *http.Request) {
	filieres, err := h.service.ListFilieres(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, filieres)
}

func (h *Handler) HandleNiveaux(w http.ResponseWriter, r *http.Request) {
	niveaux, err := h.service.ListNiveaux(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, niveaux)
}
