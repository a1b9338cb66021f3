// internal/circulation/queries.go
package circulation

import (
	"context"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"unilib/internal/apperr"
	"unilib/internal/database"
	"unilib/internal/daterange"
	"unilib/internal/eventstore"
	"unilib/internal/paging"
)

const (
	// DefaultRecent is the size of the recent loans panel.
	DefaultRecent = 5
	// maxSearchResults caps the open loan search.
	maxSearchResults = 10
)

type listRow struct {
	ID         uuid.UUID  `db:"id"`
	Nom        string     `db:"nom"`
	Prenom     string     `db:"prenom"`
	Matricule  string     `db:"matricule"`
	Livre      string     `db:"livre"`
	BorrowedAt time.Time  `db:"borrowed_at"`
	DueAt      time.Time  `db:"due_at"`
	ReturnedAt *time.Time `db:"returned_at"`
}

// loansJoined selects from loans l joined to its book b, student s and
// user u.
func loansJoined() *goqu.SelectDataset {
	return database.Dialect.From(goqu.T("loans").As("l")).
		Prepared(true).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Join(goqu.T("students").As("s"), goqu.On(goqu.I("s.id").Eq(goqu.I("l.student_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("s.user_id"))))
}

func summaryColumns() []any {
	return []any{
		goqu.I("l.id"),
		goqu.I("b.title").As("livre"),
		goqu.I("s.matricule"),
		goqu.I("u.nom"),
		goqu.I("u.prenom"),
		goqu.I("l.borrowed_at"),
		goqu.I("l.due_at"),
	}
}

func studentMatches(query string) exp.Expression {
	pattern := database.Contains(query)
	return goqu.Or(
		goqu.I("s.matricule").ILike(pattern),
		goqu.I("u.nom").ILike(pattern),
		goqu.I("u.prenom").ILike(pattern),
	)
}

// ListLoans returns one page of loans, newest first. The status filter and
// the statut column are both computed against the same instant.
func (s *service) ListLoans(ctx context.Context, filter LoanFilter, page paging.Request) (*LoanPage, error) {
	now := s.now()

	var where []exp.Expression
	if filter.Status != "" {
		status, err := ParseStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		where = append(where, statusPredicate(status, now))
	}
	if q := strings.TrimSpace(filter.Student); q != "" {
		where = append(where, studentMatches(q))
	}
	if filter.Day != "" {
		day, err := daterange.Day(filter.Day, s.loc)
		if err != nil {
			return nil, err
		}
		where = append(where,
			goqu.I("l.borrowed_at").Gte(day.Start),
			goqu.I("l.borrowed_at").Lt(day.End),
		)
	}

	base := loansJoined().Where(where...)

	countSQL, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build loan count query")
	}
	var total int
	if err := s.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, apperr.Internal(err, "failed to count loans")
	}

	listSQL, listArgs, err := base.
		Select(
			goqu.I("l.id"),
			goqu.I("u.nom"),
			goqu.I("u.prenom"),
			goqu.I("s.matricule"),
			goqu.I("b.title").As("livre"),
			goqu.I("l.borrowed_at"),
			goqu.I("l.due_at"),
			goqu.I("l.returned_at"),
		).
		Order(goqu.I("l.borrowed_at").Desc(), goqu.I("l.id").Desc()).
		Limit(uint(page.PerPage)).
		Offset(uint(page.Offset())).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build loan list query")
	}
	var rows []listRow
	if err := s.db.SelectContext(ctx, &rows, listSQL, listArgs...); err != nil {
		return nil, apperr.Internal(err, "failed to list loans")
	}

	data := make([]LoanRow, 0, len(rows))
	for _, r := range rows {
		row := LoanRow{
			ID:          r.ID,
			Nom:         r.Nom,
			Prenom:      r.Prenom,
			Matricule:   r.Matricule,
			Livre:       r.Livre,
			DateEmprunt: r.BorrowedAt.In(s.loc).Format(daterange.DayLayout),
			Statut:      Classify(r.ReturnedAt, r.DueAt, now),
		}
		if r.ReturnedAt != nil {
			row.DateRetour = r.ReturnedAt.In(s.loc).Format(daterange.DayLayout)
		}
		data = append(data, row)
	}

	return &LoanPage{
		Data:       data,
		Total:      total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages(total),
	}, nil
}

// RecentLoans returns the latest loans. limit defaults to DefaultRecent.
func (s *service) RecentLoans(ctx context.Context, limit int) ([]LoanSummary, error) {
	if limit < 1 {
		limit = DefaultRecent
	}
	if limit > paging.MaxPerPage {
		limit = paging.MaxPerPage
	}

	query, args, err := loansJoined().
		Select(summaryColumns()...).
		Order(goqu.I("l.borrowed_at").Desc(), goqu.I("l.id").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build recent loans query")
	}

	loans := []LoanSummary{}
	if err := s.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, apperr.Internal(err, "failed to list recent loans")
	}
	return loans, nil
}

// SearchOpenLoans finds open loans by book title or by student, soonest
// due first.
func (s *service) SearchOpenLoans(ctx context.Context, query string) ([]OpenLoan, error) {
	ds := loansJoined().
		Select(append(summaryColumns(), goqu.I("l.book_id"))...).
		Where(goqu.I("l.returned_at").IsNull()).
		Order(goqu.I("l.due_at").Asc(), goqu.I("l.id").Asc()).
		Limit(maxSearchResults)

	if q := strings.TrimSpace(query); q != "" {
		ds = ds.Where(goqu.Or(
			goqu.I("b.title").ILike(database.Contains(q)),
			studentMatches(q),
		))
	}

	sqlText, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build open loan search")
	}

	loans := []OpenLoan{}
	if err := s.db.SelectContext(ctx, &loans, sqlText, args...); err != nil {
		return nil, apperr.Internal(err, "failed to search open loans")
	}
	return loans, nil
}

// LoanHistory returns the journal of a loan, oldest first.
func (s *service) LoanHistory(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	events, err := s.eventStore.LoadEvents(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load loan history")
	}
	if len(events) == 0 {
		return nil, apperr.NotFound("loan %s not found", id)
	}
	return events, nil
}
