// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"

	"unilib/internal/auth"
)

// Service defines the interface for the catalog service.
type Service interface {
	CreateAuthor(ctx context.Context, actor auth.Principal, in AuthorInput) (*Author, error)
	GetAuthor(ctx context.Context, id uuid.UUID) (*AuthorDetail, error)
	ListAuthors(ctx context.Context, q AuthorQuery) ([]Author, error)
	UpdateAuthor(ctx context.Context, actor auth.Principal, id uuid.UUID, in AuthorInput) (*Author, error)
	DeleteAuthor(ctx context.Context, actor auth.Principal, id uuid.UUID) error

	CreateCategory(ctx context.Context, actor auth.Principal, in CategoryInput) (*Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*CategoryDetail, error)
	ListCategories(ctx context.Context) ([]Category, error)
	UpdateCategory(ctx context.Context, actor auth.Principal, id uuid.UUID, in CategoryInput) (*Category, error)
	DeleteCategory(ctx context.Context, actor auth.Principal, id uuid.UUID) error

	CreateBook(ctx context.Context, actor auth.Principal, in BookInput, cover *Upload) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	LatestBooks(ctx context.Context, limit int) ([]Book, error)
	UpdateBook(ctx context.Context, actor auth.Principal, id uuid.UUID, in BookInput, cover *Upload) (*Book, error)
	DeleteBook(ctx context.Context, actor auth.Principal, id uuid.UUID) error

	SearchAvailable(ctx context.Context, query string) ([]BookMatch, error)
}
