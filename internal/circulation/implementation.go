// internal/circulation/implementation.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/database"
	"unilib/internal/daterange"
	"unilib/internal/eventstore"
	"unilib/internal/validate"
)

// service implements the Service interface.
type service struct {
	db            *sqlx.DB
	eventStore    *eventstore.EventStore
	loc           *time.Location
	log           logrus.FieldLogger
	tracer        trace.Tracer
	loansCreated  metric.Int64Counter
	loansReturned metric.Int64Counter
	now           func() time.Time
}

// NewService creates a new circulation service. Dates without a time of day
// are read in loc.
func NewService(db *sqlx.DB, es *eventstore.EventStore, loc *time.Location, log logrus.FieldLogger) Service {
	meter := otel.Meter("unilib/circulation")
	log = log.WithField("component", "circulation")

	return &service{
		db:            db,
		eventStore:    es,
		loc:           loc,
		log:           log,
		tracer:        otel.Tracer("unilib/circulation"),
		loansCreated:  counter(meter, "unilib.loans.created", "Loans opened", log),
		loansReturned: counter(meter, "unilib.loans.returned", "Loans closed", log),
		now:           time.Now,
	}
}

func counter(meter metric.Meter, name, description string, log logrus.FieldLogger) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.WithError(err).WithField("metric", name).Warn("failed to create counter")
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

type borrower struct {
	ID        uuid.UUID `db:"id"`
	Matricule string    `db:"matricule"`
	Nom       string    `db:"nom"`
	Prenom    string    `db:"prenom"`
}

type lendableBook struct {
	ID    uuid.UUID `db:"id"`
	Title string    `db:"title"`
}

// CreateLoan lends an available book to a student. Locking the book row,
// flipping its flag, inserting the loan and journaling LoanCreated happen in
// one transaction.
func (s *service) CreateLoan(ctx context.Context, actor auth.Principal, in CreateLoanInput) (*LoanSummary, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}
	in.Matricule = strings.TrimSpace(in.Matricule)
	in.Livre = strings.TrimSpace(in.Livre)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	dueAt, wholeDay, err := daterange.ParseDeadline(in.DateRetourPrevue, s.loc)
	if err != nil {
		return nil, err
	}
	if daterange.Expired(dueAt, wholeDay, now, s.loc) {
		return nil, apperr.InvalidFields("invalid due date", map[string]string{
			"dateRetourPrevue": "must not be in the past",
		})
	}

	ctx, span := s.tracer.Start(ctx, "circulation.create_loan",
		trace.WithAttributes(attribute.String("student.matricule", in.Matricule)))
	defer span.End()

	var summary *LoanSummary
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		student, err := findBorrower(ctx, tx, in.Matricule)
		if err != nil {
			return err
		}
		book, err := lockLendableBook(ctx, tx, in.Livre)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE books SET disponible = FALSE, updated_at = $2
			WHERE id = $1 AND disponible
		`, book.ID, now)
		if err != nil {
			return apperr.Internal(err, "failed to mark book as lent")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("no available book matches %q", in.Livre)
		}

		loan := Loan{
			ID:         uuid.New(),
			BookID:     book.ID,
			StudentID:  student.ID,
			BorrowedAt: now,
			DueAt:      dueAt,
			Remarks:    nonEmpty(in.Remarques),
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO loans (id, book_id, student_id, borrowed_at, due_at, remarks, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $4, $4)
		`, loan.ID, loan.BookID, loan.StudentID, loan.BorrowedAt, loan.DueAt, loan.Remarks)
		if err != nil {
			if _, ok := database.UniqueViolation(err); ok {
				return apperr.Conflict("book %q already has an open loan", book.Title)
			}
			return apperr.Internal(err, "failed to insert loan")
		}

		event, err := eventstore.NewEvent(EventLoanCreated, LoanCreatedEvent{
			LoanID:     loan.ID,
			BookID:     loan.BookID,
			StudentID:  loan.StudentID,
			Matricule:  student.Matricule,
			BorrowedAt: loan.BorrowedAt,
			DueAt:      loan.DueAt,
		}, actorMetadata(actor))
		if err != nil {
			return apperr.Internal(err, "failed to build loan event")
		}
		if err := s.eventStore.AppendEvents(ctx, tx, loan.ID, eventstore.AggregateLoan, 0, []eventstore.Event{event}); err != nil {
			return apperr.Internal(err, "failed to journal loan")
		}

		summary = &LoanSummary{
			ID:               loan.ID,
			LivreTitre:       book.Title,
			Matricule:        student.Matricule,
			Nom:              student.Nom,
			Prenom:           student.Prenom,
			DateEmprunt:      loan.BorrowedAt,
			DateRetourPrevue: loan.DueAt,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.loansCreated.Add(ctx, 1)
	s.log.WithFields(logrus.Fields{
		"loan_id":   summary.ID,
		"matricule": summary.Matricule,
		"book":      summary.LivreTitre,
		"actor":     actor.UserID,
	}).Info("loan created")
	return summary, nil
}

func findBorrower(ctx context.Context, tx *sqlx.Tx, matricule string) (*borrower, error) {
	var b borrower
	err := tx.GetContext(ctx, &b, `
		SELECT s.id, s.matricule, u.nom, u.prenom
		FROM students s
		JOIN users u ON u.id = s.user_id
		WHERE s.matricule = $1
	`, matricule)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("student %s not found", matricule)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load student")
	}
	return &b, nil
}

// lockLendableBook picks and locks one available book for identifier. A
// book id matches exactly. Otherwise an exact ISBN wins over an exact title,
// which wins over a title substring; ties go to title then id. Rows locked
// by a concurrent checkout are skipped.
func lockLendableBook(ctx context.Context, tx *sqlx.Tx, identifier string) (*lendableBook, error) {
	var (
		book lendableBook
		err  error
	)
	if id, parseErr := uuid.Parse(identifier); parseErr == nil {
		err = tx.GetContext(ctx, &book, `
			SELECT id, title FROM books
			WHERE id = $1 AND disponible
			FOR UPDATE SKIP LOCKED
		`, id)
	} else {
		err = tx.GetContext(ctx, &book, `
			SELECT id, title FROM books
			WHERE disponible AND (isbn = $1 OR title ILIKE $2)
			ORDER BY COALESCE(isbn = $1, FALSE) DESC, lower(title) = lower($1) DESC, title, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, identifier, database.Contains(identifier))
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no available book matches %q", identifier)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to look up book")
	}
	return &book, nil
}

type openLoanRow struct {
	Loan
	Title     string `db:"title"`
	Matricule string `db:"matricule"`
	Nom       string `db:"nom"`
	Prenom    string `db:"prenom"`
}

// ReturnLoan closes an open loan and makes its book available again. A loan
// that is already closed is a Conflict and nothing changes.
func (s *service) ReturnLoan(ctx context.Context, actor auth.Principal, id uuid.UUID, in ReturnLoanInput) (*ReturnedLoan, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}

	now := s.now()
	returnedAt := now
	if v := strings.TrimSpace(in.DateRetourEffective); v != "" {
		t, err := daterange.ParseInstant(v, now, s.loc)
		if err != nil {
			return nil, err
		}
		returnedAt = t
	}

	ctx, span := s.tracer.Start(ctx, "circulation.return_loan",
		trace.WithAttributes(attribute.String("loan.id", id.String())))
	defer span.End()

	var returned *ReturnedLoan
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var row openLoanRow
		err := tx.GetContext(ctx, &row, `
			SELECT l.id, l.book_id, l.student_id, l.borrowed_at, l.due_at, l.returned_at,
			       l.remarks, l.created_at, l.updated_at,
			       b.title, s.matricule, u.nom, u.prenom
			FROM loans l
			JOIN books b ON b.id = l.book_id
			JOIN students s ON s.id = l.student_id
			JOIN users u ON u.id = s.user_id
			WHERE l.id = $1
			FOR UPDATE OF l
		`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("loan %s not found", id)
		}
		if err != nil {
			return apperr.Internal(err, "failed to load loan")
		}
		if row.ReturnedAt != nil {
			return apperr.Conflict("book %q was already returned", row.Title)
		}
		if returnedAt.Before(row.BorrowedAt) {
			return apperr.InvalidFields("invalid return date", map[string]string{
				"dateRetourEffective": "must not be before the borrow date",
			})
		}

		loan := &row.Loan
		err = tx.GetContext(ctx, loan, `
			UPDATE loans
			SET returned_at = $2, remarks = COALESCE($3, remarks), updated_at = $4
			WHERE id = $1 AND returned_at IS NULL
			RETURNING id, book_id, student_id, borrowed_at, due_at, returned_at, remarks, created_at, updated_at
		`, id, returnedAt, nonEmpty(in.Remarques), now)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Conflict("book %q was already returned", row.Title)
		}
		if err != nil {
			return apperr.Internal(err, "failed to close loan")
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE books SET disponible = TRUE, updated_at = $2 WHERE id = $1
		`, loan.BookID, now); err != nil {
			return apperr.Internal(err, "failed to mark book as available")
		}

		event, err := eventstore.NewEvent(EventLoanReturned, LoanReturnedEvent{
			LoanID:     loan.ID,
			BookID:     loan.BookID,
			ReturnedAt: returnedAt,
			Overdue:    returnedAt.After(loan.DueAt),
		}, actorMetadata(actor))
		if err != nil {
			return apperr.Internal(err, "failed to build return event")
		}
		if err := s.eventStore.Append(ctx, tx, loan.ID, eventstore.AggregateLoan, event); err != nil {
			if errors.Is(err, eventstore.ErrConcurrencyConflict) {
				return apperr.Conflict("loan %s was modified concurrently", id)
			}
			return apperr.Internal(err, "failed to journal return")
		}

		returned = &ReturnedLoan{
			Loan:    *loan,
			Book:    BookRef{Title: row.Title},
			Student: StudentRef{Matricule: row.Matricule, Nom: row.Nom, Prenom: row.Prenom},
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.loansReturned.Add(ctx, 1)
	s.log.WithFields(logrus.Fields{
		"loan_id": returned.ID,
		"book":    returned.Book.Title,
		"actor":   actor.UserID,
	}).Info("loan returned")
	return returned, nil
}

func actorMetadata(actor auth.Principal) eventstore.Metadata {
	return eventstore.Metadata{"actor": actor.UserID.String(), "role": string(actor.Role)}
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
