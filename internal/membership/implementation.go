// internal/membership/implementation.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/database"
	"unilib/internal/eventstore"
	"unilib/internal/validate"
)

const (
	minSearchLength  = 2
	maxSearchResults = 10
)

// service implements the Service interface.
type service struct {
	db          *sqlx.DB
	eventStore  *eventstore.EventStore
	tokens      *auth.TokenManager
	rateLimiter *Limiter
	log         logrus.FieldLogger
	now         func() time.Time
}

// NewService creates a new membership service instance. Registration and
// login are limited per client, see WithClient.
func NewService(db *sqlx.DB, es *eventstore.EventStore, tokens *auth.TokenManager, limiter *Limiter, log logrus.FieldLogger) Service {
	return &service{
		db:          db,
		eventStore:  es,
		tokens:      tokens,
		rateLimiter: limiter,
		log:         log.WithField("component", "membership"),
		now:         time.Now,
	}
}

// Register creates a user and its profile in one transaction.
func (s *service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	if !s.rateLimiter.Allow(actionRegister, clientFrom(ctx)) {
		return nil, apperr.TooManyRequests("too many attempts, retry later")
	}

	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if err := checkProfileFields(in); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, in); err != nil {
		return nil, err
	}

	now := s.now()
	user := User{
		ID:        uuid.New(),
		Email:     in.Email,
		Telephone: in.Telephone,
		Nom:       in.Nom,
		Prenom:    in.Prenom,
		Role:      in.Role,
		CreatedAt: now,
	}

	var profile Profile
	switch in.Role {
	case auth.RoleStudent:
		profile = StudentProfile{ID: uuid.New(), Matricule: in.Matricule}
	case auth.RoleManager:
		hash, err := hashPassword(in.Password)
		if err != nil {
			return nil, apperr.Internal(err, "failed to hash password")
		}
		profile = ManagerProfile{ID: uuid.New(), PasswordHash: hash}
	}

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, telephone, nom, prenom, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, user.ID, user.Email, user.Telephone, user.Nom, user.Prenom, user.Role, now); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		switch p := profile.(type) {
		case StudentProfile:
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO students (id, user_id, matricule, filiere_id, niveau_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, p.ID, user.ID, p.Matricule, *in.FiliereID, *in.NiveauID, now); err != nil {
				return fmt.Errorf("failed to insert student: %w", err)
			}
		case ManagerProfile:
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO managers (id, user_id, password_hash, created_at)
				VALUES ($1, $2, $3, $4)
			`, p.ID, user.ID, p.PasswordHash, now); err != nil {
				return fmt.Errorf("failed to insert manager: %w", err)
			}
		}

		event, err := eventstore.NewEvent("UserRegistered", UserRegisteredEvent{
			UserID:    user.ID,
			Role:      user.Role,
			Matricule: in.Matricule,
		}, nil)
		if err != nil {
			return err
		}
		return s.eventStore.AppendEvents(ctx, tx, user.ID, "user", 0, []eventstore.Event{event})
	})
	if err != nil {
		return nil, registrationError(err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return s.GetAccount(ctx, user.ID)
}

func checkProfileFields(in RegisterInput) error {
	fields := map[string]string{}
	switch in.Role {
	case auth.RoleStudent:
		if in.Matricule == "" {
			fields["matricule"] = "is required for students"
		}
		if in.FiliereID == nil {
			fields["filiereId"] = "is required for students"
		}
		if in.NiveauID == nil {
			fields["niveauId"] = "is required for students"
		}
	case auth.RoleManager:
		if in.Password == "" {
			fields["password"] = "is required for managers"
		}
	}
	if len(fields) > 0 {
		return apperr.InvalidFields("validation failed", fields)
	}
	return nil
}

func (s *service) checkUnique(ctx context.Context, in RegisterInput) error {
	var taken struct {
		Email     bool `db:"email"`
		Telephone bool `db:"telephone"`
		Matricule bool `db:"matricule"`
	}
	err := s.db.GetContext(ctx, &taken, `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE email = $1) AS email,
			EXISTS (SELECT 1 FROM users WHERE telephone = $2) AS telephone,
			EXISTS (SELECT 1 FROM students WHERE matricule = $3 AND $3 <> '') AS matricule
	`, in.Email, in.Telephone, in.Matricule)
	if err != nil {
		return apperr.Internal(err, "failed to check account uniqueness")
	}

	switch {
	case taken.Email:
		return apperr.Conflict("email %s is already registered", in.Email)
	case taken.Telephone:
		return apperr.Conflict("telephone %s is already registered", in.Telephone)
	case taken.Matricule:
		return apperr.Conflict("matricule %s is already registered", in.Matricule)
	}
	return nil
}

// registrationError maps constraint violations from a raced insert.
func registrationError(err error) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case "users_email_key":
			return apperr.Conflict("email is already registered")
		case "users_telephone_key":
			return apperr.Conflict("telephone is already registered")
		case "students_matricule_key":
			return apperr.Conflict("matricule is already registered")
		}
		return apperr.Conflict("account already exists")
	}
	if _, ok := database.ForeignKeyViolation(err); ok {
		return apperr.NotFound("filiere or niveau not found")
	}
	return apperr.Internal(err, "failed to register user")
}

// Authenticate verifies a manager's credentials and issues a session token.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	if !s.rateLimiter.Allow(actionLogin, clientFrom(ctx)) {
		return nil, apperr.TooManyRequests("too many attempts, retry later")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Invalid("email and password are required")
	}

	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	var passwordHash string
	err = s.db.GetContext(ctx, &passwordHash, `SELECT password_hash FROM managers WHERE user_id = $1`, user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Forbidden("only managers can sign in")
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load credentials")
	}

	ok, err := verifyPassword(password, passwordHash)
	if err != nil {
		return nil, apperr.Internal(err, "failed to verify password")
	}
	if !ok {
		s.log.WithField("user_id", user.ID).Warn("failed login attempt")
		return nil, apperr.Unauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(auth.Principal{UserID: user.ID, Role: user.Role})
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue token")
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_connected = $2 WHERE id = $1`, user.ID, now); err != nil {
		return nil, apperr.Internal(err, "failed to record last connection")
	}
	user.LastConnected = &now

	return &Session{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

func (s *service) getUserByEmail(ctx context.Context, email string) (*User, error) {
	user := &User{}
	err := s.db.GetContext(ctx, user, `
		SELECT id, email, telephone, nom, prenom, role, last_connected, created_at
		FROM users
		WHERE email = $1
	`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no account for %s", email)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load user")
	}
	return user, nil
}

// GetAccount loads a user and its profile.
func (s *service) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	user := User{}
	err := s.db.GetContext(ctx, &user, `
		SELECT id, email, telephone, nom, prenom, role, last_connected, created_at
		FROM users
		WHERE id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %s not found", userID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load user")
	}

	profile, err := s.loadProfile(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Account{User: user, Profile: profile}, nil
}

func (s *service) loadProfile(ctx context.Context, user User) (Profile, error) {
	switch user.Role {
	case auth.RoleStudent:
		var row struct {
			ID          uuid.UUID `db:"id"`
			Matricule   string    `db:"matricule"`
			FiliereID   uuid.UUID `db:"filiere_id"`
			FiliereCode string    `db:"filiere_code"`
			FiliereNom  string    `db:"filiere_nom"`
			NiveauID    uuid.UUID `db:"niveau_id"`
			NiveauNom   string    `db:"niveau_nom"`
		}
		err := s.db.GetContext(ctx, &row, `
			SELECT s.id, s.matricule,
				f.id AS filiere_id, f.code AS filiere_code, f.nom AS filiere_nom,
				n.id AS niveau_id, n.nom AS niveau_nom
			FROM students s
			JOIN filieres f ON f.id = s.filiere_id
			JOIN niveaux n ON n.id = s.niveau_id
			WHERE s.user_id = $1
		`, user.ID)
		if err != nil {
			return nil, profileError(err, user)
		}
		return StudentProfile{
			ID:        row.ID,
			Matricule: row.Matricule,
			Filiere:   Filiere{ID: row.FiliereID, Code: row.FiliereCode, Nom: row.FiliereNom},
			Niveau:    Niveau{ID: row.NiveauID, Nom: row.NiveauNom},
		}, nil
	case auth.RoleManager:
		var p ManagerProfile
		err := s.db.QueryRowxContext(ctx, `SELECT id, password_hash FROM managers WHERE user_id = $1`, user.ID).
			Scan(&p.ID, &p.PasswordHash)
		if err != nil {
			return nil, profileError(err, user)
		}
		return p, nil
	default:
		return nil, apperr.Internal(fmt.Errorf("unknown role %q", user.Role), "failed to load profile")
	}
}

func profileError(err error, user User) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Internal(fmt.Errorf("user %s has no %s profile", user.ID, user.Role), "failed to load profile")
	}
	return apperr.Internal(err, "failed to load profile")
}

// SearchStudents matches matricule, nom or prenom. Queries shorter than two
// characters return nothing.
func (s *service) SearchStudents(ctx context.Context, query string) ([]StudentMatch, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLength {
		return []StudentMatch{}, nil
	}

	pattern := database.Contains(query)
	sqlQuery, args, err := database.Dialect.
		From(goqu.T("students").As("s")).
		Prepared(true).
		Select(
			goqu.I("s.id"), goqu.I("s.matricule"), goqu.I("u.nom"), goqu.I("u.prenom"),
			goqu.I("f.nom").As("filiere"), goqu.I("n.nom").As("niveau"),
		).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("s.user_id")))).
		Join(goqu.T("filieres").As("f"), goqu.On(goqu.I("f.id").Eq(goqu.I("s.filiere_id")))).
		Join(goqu.T("niveaux").As("n"), goqu.On(goqu.I("n.id").Eq(goqu.I("s.niveau_id")))).
		Where(goqu.Or(
			goqu.I("s.matricule").ILike(pattern),
			goqu.I("u.nom").ILike(pattern),
			goqu.I("u.prenom").ILike(pattern),
		)).
		Order(goqu.I("u.nom").Asc(), goqu.I("u.prenom").Asc(), goqu.I("s.id").Asc()).
		Limit(maxSearchResults).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build student search")
	}

	matches := []StudentMatch{}
	if err := s.db.SelectContext(ctx, &matches, sqlQuery, args...); err != nil {
		return nil, apperr.Internal(err, "failed to search students")
	}
	return matches, nil
}

func (s *service) ListFilieres(ctx context.Context) ([]Filiere, error) {
	filieres := []Filiere{}
	if err := s.db.SelectContext(ctx, &filieres, `SELECT id, code, nom FROM filieres ORDER BY nom`); err != nil {
		return nil, apperr.Internal(err, "failed to list filieres")
	}
	return filieres, nil
}

func (s *service) ListNiveaux(ctx context.Context) ([]Niveau, error) {
	niveaux := []Niveau{}
	if err := s.db.SelectContext(ctx, &niveaux, `SELECT id, nom FROM niveaux ORDER BY nom`); err != nil {
		return nil, apperr.Internal(err, "failed to list niveaux")
	}
	return niveaux, nil
}
