// internal/circulation/status.go
package circulation

import (
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"unilib/internal/apperr"
)

// Status is the derived state of a loan. It is never stored.
type Status string

const (
	StatusReturned Status = "Retourné"
	StatusOverdue  Status = "En retard"
	StatusOngoing  Status = "En cours"
)

// Classify derives a loan's status at now. A loan due exactly at now is
// still ongoing.
func Classify(returnedAt *time.Time, dueAt, now time.Time) Status {
	switch {
	case returnedAt != nil:
		return StatusReturned
	case dueAt.Before(now):
		return StatusOverdue
	default:
		return StatusOngoing
	}
}

// ParseStatus accepts the French labels used by the loan list filter.
func ParseStatus(value string) (Status, error) {
	switch s := Status(value); s {
	case StatusReturned, StatusOverdue, StatusOngoing:
		return s, nil
	default:
		return "", apperr.InvalidFields("invalid status filter", map[string]string{
			"statut": "must be one of: Retourné, En retard, En cours",
		})
	}
}

// statusPredicate selects the loans aliased l that Classify maps to s at
// now.
func statusPredicate(s Status, now time.Time) exp.Expression {
	returned := goqu.I("l.returned_at")
	due := goqu.I("l.due_at")

	switch s {
	case StatusReturned:
		return returned.IsNotNull()
	case StatusOverdue:
		return goqu.And(returned.IsNull(), due.Lt(now))
	default:
		return goqu.And(returned.IsNull(), due.Gte(now))
	}
}
