// internal/membership/domain.go
package membership

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"unilib/internal/auth"
)

// User is an account holder. Exactly one Profile attaches to it.
type User struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Email         string     `json:"email" db:"email"`
	Telephone     string     `json:"telephone" db:"telephone"`
	Nom           string     `json:"nom" db:"nom"`
	Prenom        string     `json:"prenom" db:"prenom"`
	Role          auth.Role  `json:"role" db:"role"`
	LastConnected *time.Time `json:"lastConnected,omitempty" db:"last_connected"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}

// Profile is either a StudentProfile or a ManagerProfile.
type Profile interface {
	isProfile()
}

type StudentProfile struct {
	ID        uuid.UUID
	Matricule string
	Filiere   Filiere
	Niveau    Niveau
}

type ManagerProfile struct {
	ID           uuid.UUID
	PasswordHash string
}

func (StudentProfile) isProfile() {}
func (ManagerProfile) isProfile() {}

// Account is a user together with its profile.
type Account struct {
	User    User
	Profile Profile
}

type Filiere struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Code string    `json:"code" db:"code"`
	Nom  string    `json:"nom" db:"nom"`
}

type Niveau struct {
	ID  uuid.UUID `json:"id" db:"id"`
	Nom string    `json:"nom" db:"nom"`
}

// RegisterInput is the registration request body.
type RegisterInput struct {
	Email     string     `json:"email" validate:"required,email"`
	Password  string     `json:"password" validate:"omitempty,min=6"`
	Nom       string     `json:"nom" validate:"required"`
	Prenom    string     `json:"prenom" validate:"required"`
	Telephone string     `json:"telephone" validate:"required,min=8"`
	Role      auth.Role  `json:"role" validate:"required,oneof=STUDENT MANAGER"`
	Matricule string     `json:"matricule"`
	FiliereID *uuid.UUID `json:"filiereId"`
	NiveauID  *uuid.UUID `json:"niveauId"`
}

func (in *RegisterInput) normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Nom = strings.TrimSpace(in.Nom)
	in.Prenom = strings.TrimSpace(in.Prenom)
	in.Telephone = strings.TrimSpace(in.Telephone)
	in.Matricule = strings.TrimSpace(in.Matricule)
	in.Role = auth.Role(strings.ToUpper(strings.TrimSpace(string(in.Role))))
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// StudentMatch is a student search result.
type StudentMatch struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Matricule string    `json:"matricule" db:"matricule"`
	Nom       string    `json:"nom" db:"nom"`
	Prenom    string    `json:"prenom" db:"prenom"`
	Filiere   string    `json:"filiere" db:"filiere"`
	Niveau    string    `json:"niveau" db:"niveau"`
}

// UserRegisteredEvent is journaled when an account is created.
type UserRegisteredEvent struct {
	UserID    uuid.UUID `json:"userId"`
	Role      auth.Role `json:"role"`
	Matricule string    `json:"matricule,omitempty"`
}
