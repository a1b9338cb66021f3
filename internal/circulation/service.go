// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"

	"unilib/internal/auth"
	"unilib/internal/eventstore"
	"unilib/internal/paging"
)

// Service defines the interface for the circulation service.
type Service interface {
	CreateLoan(ctx context.Context, actor auth.Principal, in CreateLoanInput) (*LoanSummary, error)
	ReturnLoan(ctx context.Context, actor auth.Principal, id uuid.UUID, in ReturnLoanInput) (*ReturnedLoan, error)
	ListLoans(ctx context.Context, filter LoanFilter, page paging.Request) (*LoanPage, error)
	RecentLoans(ctx context.Context, limit int) ([]LoanSummary, error)
	SearchOpenLoans(ctx context.Context, query string) ([]OpenLoan, error)
	LoanHistory(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error)
}
