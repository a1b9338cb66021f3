// internal/catalog/books.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/database"
)

const (
	minSearchLength  = 2
	maxSearchResults = 10
	DefaultLatest    = 5
)

type bookRow struct {
	ID              uuid.UUID  `db:"id"`
	Title           string     `db:"title"`
	ISBN            *string    `db:"isbn"`
	Langue          *string    `db:"langue"`
	NbPages         *int       `db:"nb_pages"`
	Edition         *string    `db:"edition"`
	Genre           *string    `db:"genre"`
	Resume          *string    `db:"resume"`
	DatePublication *time.Time `db:"date_publication"`
	ImageCover      *string    `db:"image_cover"`
	Disponible      bool       `db:"disponible"`
	AuthorID        uuid.UUID  `db:"author_id"`
	AuthorNom       string     `db:"author_nom"`
	AuthorPrenom    string     `db:"author_prenom"`
	CategoryID      uuid.UUID  `db:"category_id"`
	CategoryNom     string     `db:"category_nom"`
	CategoryColor   string     `db:"category_color"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r bookRow) book() Book {
	return Book{
		ID:              r.ID,
		Title:           r.Title,
		ISBN:            r.ISBN,
		Langue:          r.Langue,
		NbPages:         r.NbPages,
		Edition:         r.Edition,
		Genre:           r.Genre,
		Resume:          r.Resume,
		DatePublication: r.DatePublication,
		ImageCover:      r.ImageCover,
		Disponible:      r.Disponible,
		AuthorID:        r.AuthorID,
		CategoryID:      r.CategoryID,
		Author:          AuthorRef{ID: r.AuthorID, Nom: r.AuthorNom, Prenom: r.AuthorPrenom},
		Category:        CategoryRef{ID: r.CategoryID, Nom: r.CategoryNom, Color: r.CategoryColor},
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func booksSelect() *goqu.SelectDataset {
	return database.Dialect.From(goqu.T("books").As("b")).
		Prepared(true).
		Select(
			goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.isbn"), goqu.I("b.langue"),
			goqu.I("b.nb_pages"), goqu.I("b.edition"), goqu.I("b.genre"), goqu.I("b.resume"),
			goqu.I("b.date_publication"), goqu.I("b.image_cover"), goqu.I("b.disponible"),
			goqu.I("b.author_id"), goqu.I("a.nom").As("author_nom"), goqu.I("a.prenom").As("author_prenom"),
			goqu.I("b.category_id"), goqu.I("c.nom").As("category_nom"), goqu.I("c.color").As("category_color"),
			goqu.I("b.created_at"), goqu.I("b.updated_at"),
		).
		Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
		Join(goqu.T("categories").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("b.category_id"))))
}

func (s *service) selectBooks(ctx context.Context, ds *goqu.SelectDataset) ([]Book, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build book query")
	}

	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Internal(err, "failed to query books")
	}

	books := make([]Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, r.book())
	}
	return books, nil
}

// GetBook returns a book with its author and category.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	books, err := s.selectBooks(ctx, booksSelect().Where(goqu.I("b.id").Eq(id.String())))
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, apperr.NotFound("book %s not found", id)
	}
	return &books[0], nil
}

// ListBooks returns every book, newest first.
func (s *service) ListBooks(ctx context.Context) ([]Book, error) {
	return s.selectBooks(ctx, booksSelect().Order(goqu.I("b.created_at").Desc(), goqu.I("b.id").Desc()))
}

// LatestBooks returns the most recently added books.
func (s *service) LatestBooks(ctx context.Context, limit int) ([]Book, error) {
	if limit <= 0 {
		limit = DefaultLatest
	}
	return s.selectBooks(ctx, booksSelect().
		Order(goqu.I("b.created_at").Desc(), goqu.I("b.id").Desc()).
		Limit(uint(limit)))
}

// CreateBook inserts a book, available by default, and bumps its author's
// book count. A stored cover is removed again if the insert fails.
func (s *service) CreateBook(ctx context.Context, actor auth.Principal, in BookInput, cover *Upload) (*Book, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}
	if err := checkBookInput(in, true); err != nil {
		return nil, err
	}

	var coverRef *string
	if cover != nil {
		ref, err := s.covers.Save(cover.Filename, cover.Content)
		if err != nil {
			return nil, apperr.Internal(err, "failed to store cover")
		}
		coverRef = &ref
	}

	id := uuid.New()
	now := s.now()
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO books (id, title, isbn, langue, nb_pages, edition, genre, resume,
				date_publication, image_cover, disponible, author_id, category_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $12, $13, $13)
		`, id, strings.TrimSpace(*in.Title), in.ISBN, in.Langue, in.NbPages, in.Edition, in.Genre, in.Resume,
			in.DatePublication, coverRef, *in.AuthorID, *in.CategoryID, now)
		if err != nil {
			return err
		}
		return adjustBookCount(ctx, tx, *in.AuthorID, 1)
	})
	if err != nil {
		if coverRef != nil {
			s.deleteCover(*coverRef)
		}
		return nil, bookWriteError(err)
	}

	s.log.WithFields(logrus.Fields{"book_id": id, "actor": actor.UserID}).Info("book created")
	return s.GetBook(ctx, id)
}

// UpdateBook applies the non-nil fields of in. A new cover replaces the old
// one, which is deleted once the update has committed.
func (s *service) UpdateBook(ctx context.Context, actor auth.Principal, id uuid.UUID, in BookInput, cover *Upload) (*Book, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}
	if err := checkBookInput(in, false); err != nil {
		return nil, err
	}

	current, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	record := goqu.Record{"updated_at": s.now()}
	setIf(record, "title", in.Title)
	setIf(record, "isbn", in.ISBN)
	setIf(record, "langue", in.Langue)
	setIf(record, "nb_pages", in.NbPages)
	setIf(record, "edition", in.Edition)
	setIf(record, "genre", in.Genre)
	setIf(record, "resume", in.Resume)
	setIf(record, "date_publication", in.DatePublication)
	if in.AuthorID != nil {
		record["author_id"] = in.AuthorID.String()
	}
	if in.CategoryID != nil {
		record["category_id"] = in.CategoryID.String()
	}

	var newCover string
	if cover != nil {
		newCover, err = s.covers.Save(cover.Filename, cover.Content)
		if err != nil {
			return nil, apperr.Internal(err, "failed to store cover")
		}
		record["image_cover"] = newCover
	}

	query, args, err := database.Dialect.Update("books").
		Prepared(true).
		Set(record).
		Where(goqu.C("id").Eq(id.String())).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build book update")
	}

	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		if in.AuthorID != nil && *in.AuthorID != current.AuthorID {
			if err := adjustBookCount(ctx, tx, current.AuthorID, -1); err != nil {
				return err
			}
			return adjustBookCount(ctx, tx, *in.AuthorID, 1)
		}
		return nil
	})
	if err != nil {
		if newCover != "" {
			s.deleteCover(newCover)
		}
		return nil, bookWriteError(err)
	}

	if newCover != "" && current.ImageCover != nil {
		s.deleteCover(*current.ImageCover)
	}
	return s.GetBook(ctx, id)
}

// DeleteBook removes a book and then its cover. Books with loan history are
// kept.
func (s *service) DeleteBook(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	if err := auth.RequireManager(actor); err != nil {
		return err
	}

	var deleted struct {
		AuthorID   uuid.UUID `db:"author_id"`
		ImageCover *string   `db:"image_cover"`
	}
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &deleted, `
			DELETE FROM books WHERE id = $1 RETURNING author_id, image_cover
		`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("book %s not found", id)
		}
		if err != nil {
			return err
		}
		return adjustBookCount(ctx, tx, deleted.AuthorID, -1)
	})
	if _, ok := database.ForeignKeyViolation(err); ok {
		return apperr.Conflict("book %s has loan history and cannot be deleted", id)
	}
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return err
		}
		return apperr.Internal(err, "failed to delete book")
	}

	if deleted.ImageCover != nil {
		s.deleteCover(*deleted.ImageCover)
	}
	s.log.WithFields(logrus.Fields{"book_id": id, "actor": actor.UserID}).Info("book deleted")
	return nil
}

// SearchAvailable matches available books on title, ISBN or author name.
// Queries shorter than two characters return nothing.
func (s *service) SearchAvailable(ctx context.Context, query string) ([]BookMatch, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLength {
		return []BookMatch{}, nil
	}

	pattern := database.Contains(query)
	sqlQuery, args, err := database.Dialect.From(goqu.T("books").As("b")).
		Prepared(true).
		Select(
			goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.isbn"),
			goqu.L(`a.prenom || ' ' || a.nom`).As("auteur"),
		).
		Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
		Where(
			goqu.I("b.disponible").IsTrue(),
			goqu.Or(
				goqu.I("b.title").ILike(pattern),
				goqu.I("b.isbn").ILike(pattern),
				goqu.I("a.nom").ILike(pattern),
				goqu.I("a.prenom").ILike(pattern),
			),
		).
		Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc()).
		Limit(maxSearchResults).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build book search")
	}

	matches := []BookMatch{}
	if err := s.db.SelectContext(ctx, &matches, sqlQuery, args...); err != nil {
		return nil, apperr.Internal(err, "failed to search books")
	}
	return matches, nil
}

func checkBookInput(in BookInput, create bool) error {
	fields := map[string]string{}
	if create {
		if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
			fields["title"] = "is required"
		}
		if in.AuthorID == nil {
			fields["authorId"] = "is required"
		}
		if in.CategoryID == nil {
			fields["categoryId"] = "is required"
		}
	} else if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		fields["title"] = "must not be empty"
	}
	if in.NbPages != nil && *in.NbPages <= 0 {
		fields["nbPages"] = "must be positive"
	}
	if len(fields) > 0 {
		return apperr.InvalidFields("validation failed", fields)
	}
	return nil
}

func setIf[T any](record goqu.Record, column string, v *T) {
	if v != nil {
		record[column] = *v
	}
}

func adjustBookCount(ctx context.Context, tx *sqlx.Tx, authorID uuid.UUID, delta int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE authors SET nbre_books = GREATEST(nbre_books + $2, 0) WHERE id = $1
	`, authorID, delta)
	return err
}

func bookWriteError(err error) error {
	if constraint, ok := database.ForeignKeyViolation(err); ok {
		switch constraint {
		case "books_author_id_fkey":
			return apperr.NotFound("author not found")
		case "books_category_id_fkey":
			return apperr.NotFound("category not found")
		}
	}
	return apperr.Internal(err, "failed to write book")
}

func (s *service) deleteCover(ref string) {
	if err := s.covers.Delete(ref); err != nil {
		s.log.WithError(err).WithField("cover", ref).Error("failed to delete cover")
	}
}
