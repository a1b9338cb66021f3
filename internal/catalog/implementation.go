// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/database"
	"unilib/internal/validate"
)

// Covers stores cover images.
type Covers interface {
	Save(filename string, r io.Reader) (string, error)
	Delete(ref string) error
}

// service implements the Service interface.
type service struct {
	db     *sqlx.DB
	covers Covers
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(db *sqlx.DB, covers Covers, log logrus.FieldLogger) Service {
	return &service{
		db:     db,
		covers: covers,
		log:    log.WithField("component", "catalog"),
		now:    time.Now,
	}
}

var authorSortColumns = map[string]string{
	"":          "nom",
	"nom":       "nom",
	"prenom":    "prenom",
	"createdAt": "created_at",
	"nbreBooks": "nbre_books",
}

// CreateAuthor adds an author.
func (s *service) CreateAuthor(ctx context.Context, actor auth.Principal, in AuthorInput) (*Author, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}
	in.Nom, in.Prenom = strings.TrimSpace(in.Nom), strings.TrimSpace(in.Prenom)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	author := &Author{
		ID:        uuid.New(),
		Nom:       in.Nom,
		Prenom:    in.Prenom,
		Biography: in.Biography,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authors (id, nom, prenom, biography, nbre_books, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
	`, author.ID, author.Nom, author.Prenom, author.Biography, now)
	if err != nil {
		return nil, apperr.Internal(err, "failed to insert author")
	}

	s.log.WithFields(logrus.Fields{"author_id": author.ID, "actor": actor.UserID}).Info("author created")
	return author, nil
}

// GetAuthor returns an author with the titles of its books.
func (s *service) GetAuthor(ctx context.Context, id uuid.UUID) (*AuthorDetail, error) {
	detail := &AuthorDetail{}
	err := s.db.GetContext(ctx, &detail.Author, `
		SELECT id, nom, prenom, biography, nbre_books, created_at, updated_at
		FROM authors
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("author %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load author")
	}

	detail.Books = []BookRef{}
	if err := s.db.SelectContext(ctx, &detail.Books, `
		SELECT id, title, disponible FROM books WHERE author_id = $1 ORDER BY title, id
	`, id); err != nil {
		return nil, apperr.Internal(err, "failed to load author books")
	}
	return detail, nil
}

// ListAuthors searches nom, prenom and biography and sorts by a whitelisted
// column.
func (s *service) ListAuthors(ctx context.Context, q AuthorQuery) ([]Author, error) {
	column, ok := authorSortColumns[q.SortBy]
	if !ok {
		return nil, apperr.InvalidFields("invalid sort", map[string]string{"sortBy": "must be one of: nom prenom createdAt nbreBooks"})
	}

	var order exp.OrderedExpression
	switch strings.ToLower(q.SortOrder) {
	case "", "asc":
		order = goqu.C(column).Asc()
	case "desc":
		order = goqu.C(column).Desc()
	default:
		return nil, apperr.InvalidFields("invalid sort", map[string]string{"sortOrder": "must be one of: asc desc"})
	}

	ds := database.Dialect.From("authors").
		Prepared(true).
		Select("id", "nom", "prenom", "biography", "nbre_books", "created_at", "updated_at").
		Order(order, goqu.C("id").Asc())

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := database.Contains(search)
		ds = ds.Where(goqu.Or(
			goqu.C("nom").ILike(pattern),
			goqu.C("prenom").ILike(pattern),
			goqu.C("biography").ILike(pattern),
		))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build author query")
	}

	authors := []Author{}
	if err := s.db.SelectContext(ctx, &authors, query, args...); err != nil {
		return nil, apperr.Internal(err, "failed to list authors")
	}
	return authors, nil
}

func (s *service) UpdateAuthor(ctx context.Context, actor auth.Principal, id uuid.UUID, in AuthorInput) (*Author, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}
	in.Nom, in.Prenom = strings.TrimSpace(in.Nom), strings.TrimSpace(in.Prenom)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	author := &Author{}
	err := s.db.GetContext(ctx, author, `
		UPDATE authors
		SET nom = $2, prenom = $3, biography = $4, updated_at = $5
		WHERE id = $1
		RETURNING id, nom, prenom, biography, nbre_books, created_at, updated_at
	`, id, in.Nom, in.Prenom, in.Biography, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("author %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to update author")
	}
	return author, nil
}

// DeleteAuthor removes an author. The schema refuses while books still
// reference it.
func (s *service) DeleteAuthor(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	if err := auth.RequireManager(actor); err != nil {
		return err
	}
	if err := s.deleteRow(ctx, "authors", id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"author_id": id, "actor": actor.UserID}).Info("author deleted")
	return nil
}

func (s *service) CreateCategory(ctx context.Context, actor auth.Principal, in CategoryInput) (*Category, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}
	in.Nom = strings.TrimSpace(in.Nom)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.Color == "" {
		in.Color = DefaultColor
	}

	now := s.now()
	category := &Category{
		ID:          uuid.New(),
		Nom:         in.Nom,
		Description: in.Description,
		Color:       in.Color,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, nom, description, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, category.ID, category.Nom, category.Description, category.Color, now)
	if err != nil {
		return nil, apperr.Internal(err, "failed to insert category")
	}
	return category, nil
}

func (s *service) GetCategory(ctx context.Context, id uuid.UUID) (*CategoryDetail, error) {
	detail := &CategoryDetail{}
	err := s.db.GetContext(ctx, &detail.Category, `
		SELECT id, nom, description, color, created_at, updated_at
		FROM categories
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("category %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load category")
	}

	detail.Books = []BookRef{}
	if err := s.db.SelectContext(ctx, &detail.Books, `
		SELECT id, title, disponible FROM books WHERE category_id = $1 ORDER BY title, id
	`, id); err != nil {
		return nil, apperr.Internal(err, "failed to load category books")
	}
	return detail, nil
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	categories := []Category{}
	err := s.db.SelectContext(ctx, &categories, `
		SELECT id, nom, description, color, created_at, updated_at
		FROM categories
		ORDER BY nom, id
	`)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list categories")
	}
	return categories, nil
}

func (s *service) UpdateCategory(ctx context.Context, actor auth.Principal, id uuid.UUID, in CategoryInput) (*Category, error) {
	if err := auth.RequireManager(actor); err != nil {
		return nil, err
	}
	in.Nom = strings.TrimSpace(in.Nom)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.Color == "" {
		in.Color = DefaultColor
	}

	category := &Category{}
	err := s.db.GetContext(ctx, category, `
		UPDATE categories
		SET nom = $2, description = $3, color = $4, updated_at = $5
		WHERE id = $1
		RETURNING id, nom, description, color, created_at, updated_at
	`, id, in.Nom, in.Description, in.Color, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("category %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to update category")
	}
	return category, nil
}

func (s *service) DeleteCategory(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	if err := auth.RequireManager(actor); err != nil {
		return err
	}
	if err := s.deleteRow(ctx, "categories", id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"category_id": id, "actor": actor.UserID}).Info("category deleted")
	return nil
}

var deleteSubjects = map[string]string{"authors": "author", "categories": "category"}

func (s *service) deleteRow(ctx context.Context, table string, id uuid.UUID) error {
	subject := deleteSubjects[table]
	query, args, err := database.Dialect.Delete(table).
		Prepared(true).
		Where(goqu.C("id").Eq(id.String())).
		ToSQL()
	if err != nil {
		return apperr.Internal(err, "failed to build delete")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if _, ok := database.ForeignKeyViolation(err); ok {
		return apperr.Conflict("%s %s still has books", subject, id)
	}
	if err != nil {
		return apperr.Internal(err, "failed to delete %s", subject)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("%s %s not found", subject, id)
	}
	return nil
}
