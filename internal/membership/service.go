// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*Account, error)
	Authenticate(ctx context.Context, email, password string) (*Session, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	SearchStudents(ctx context.Context, query string) ([]StudentMatch, error)
	ListFilieres(ctx context.Context) ([]Filiere, error)
	ListNiveaux(ctx context.Context) ([]Niveau, error)
}
