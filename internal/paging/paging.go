// Package paging normalizes page/perPage query parameters.
package paging

import (
	"math"
	"net/url"
	"strconv"

	"unilib/internal/apperr"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100

	// MaxPage keeps Offset within a Postgres integer at any page size.
	MaxPage = math.MaxInt32/MaxPerPage + 1
)

// Request is a normalized page request. Page is 1-based.
type Request struct {
	Page    int
	PerPage int
}

// New clamps page to [1, MaxPage] and perPage to [1, MaxPerPage], using
// defaultPerPage when perPage is not positive.
func New(page, perPage, defaultPerPage int) Request {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if defaultPerPage < 1 {
		defaultPerPage = DefaultPerPage
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Request{Page: page, PerPage: perPage}
}

// FromQuery reads page and perPage from q. Non-numeric values and pages
// beyond MaxPage are Invalid.
func FromQuery(q url.Values, defaultPerPage int) (Request, error) {
	page, err := intParam(q, "page")
	if err != nil {
		return Request{}, err
	}
	if page > MaxPage {
		return Request{}, apperr.Invalid("page must be at most %d", MaxPage)
	}
	perPage, err := intParam(q, "perPage")
	if err != nil {
		return Request{}, err
	}
	return New(page, perPage, defaultPerPage), nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid("%s must be an integer", name)
	}
	return n, nil
}

func (r Request) Offset() int {
	return (r.Page - 1) * r.PerPage
}

// TotalPages is ceil(total / perPage).
func (r Request) TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + r.PerPage - 1) / r.PerPage
}
