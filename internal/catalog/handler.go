// internal/catalog/handler.go
package catalog

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
	"unilib/internal/auth"
	"unilib/internal/daterange"
	"unilib/internal/httpx"
)

type Handler struct {
	service        Service
	maxUploadBytes int64
	log            logrus.FieldLogger
}

func NewHandler(service Service, maxUploadBytes int64, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes, log: log}
}

func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Invalid("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// Authors

func (h *Handler) HandleListAuthors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	authors, err := h.service.ListAuthors(r.Context(), AuthorQuery{
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authors)
}

func (h *Handler) HandleGetAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) HandleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	var req AuthorInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	author, err := h.service.CreateAuthor(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, author)
}

func (h *Handler) HandleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	var req AuthorInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	author, err := h.service.UpdateAuthor(r.Context(), auth.PrincipalFrom(r.Context()), id, req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) HandleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if err := h.service.DeleteAuthor(r.Context(), auth.PrincipalFrom(r.Context()), id); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "author deleted"})
}

// Categories

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, categories)
}

func (h *Handler) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, category)
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	category, err := h.service.CreateCategory(r.Context(), auth.PrincipalFrom(r.Context()), req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, category)
}

func (h *Handler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	var req CategoryInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	category, err := h.service.UpdateCategory(r.Context(), auth.PrincipalFrom(r.Context()), id, req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, category)
}

func (h *Handler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), auth.PrincipalFrom(r.Context()), id); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "category deleted"})
}

// Books

func (h *Handler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.LatestBooks(r.Context(), DefaultLatest)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	in, cover, err := h.parseBookForm(w, r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	book, err := h.service.CreateBook(r.Context(), auth.PrincipalFrom(r.Context()), in, cover)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	in, cover, err := h.parseBookForm(w, r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	book, err := h.service.UpdateBook(r.Context(), auth.PrincipalFrom(r.Context()), id, in, cover)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if err := h.service.DeleteBook(r.Context(), auth.PrincipalFrom(r.Context()), id); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "book deleted"})
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	matches, err := h.service.SearchAvailable(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, matches)
}

// parseBookForm reads a multipart (or urlencoded) book form. The cover is
// the optional imageCover file part.
func (h *Handler) parseBookForm(w http.ResponseWriter, r *http.Request) (BookInput, *Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return BookInput{}, nil, formError(err)
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return BookInput{}, nil, formError(err)
		}
	default:
		return BookInput{}, nil, apperr.Invalid("expected a multipart/form-data body")
	}

	in, err := bookInputFromForm(r.PostFormValue)
	if err != nil {
		return BookInput{}, nil, err
	}

	file, header, err := r.FormFile("imageCover")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, nil, nil
	case err != nil:
		return BookInput{}, nil, formError(err)
	}
	// The multipart parts live until the request ends.
	return in, &Upload{Filename: header.Filename, Content: file}, nil
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Invalid("upload exceeds %d bytes", maxErr.Limit)
	}
	return apperr.Invalid("malformed form: %v", err)
}

func bookInputFromForm(get func(string) string) (BookInput, error) {
	var in BookInput
	fields := map[string]string{}

	str := func(name string) *string {
		v := strings.TrimSpace(get(name))
		if v == "" {
			return nil
		}
		return &v
	}
	id := func(name string) *uuid.UUID {
		v := str(name)
		if v == nil {
			return nil
		}
		parsed, err := uuid.Parse(*v)
		if err != nil {
			fields[name] = "must be a valid id"
			return nil
		}
		return &parsed
	}

	in.Title = str("title")
	in.ISBN = str("isbn")
	in.Langue = str("langue")
	in.Edition = str("edition")
	in.Genre = str("genre")
	in.Resume = str("resume")
	in.AuthorID = id("authorId")
	in.CategoryID = id("categoryId")

	if v := str("nbPages"); v != nil {
		n, err := strconv.Atoi(*v)
		if err != nil {
			fields["nbPages"] = "must be an integer"
		} else {
			in.NbPages = &n
		}
	}
	if v := str("datePublication"); v != nil {
		d, err := parsePublicationDate(*v)
		if err != nil {
			fields["datePublication"] = "must be a date (YYYY-MM-DD)"
		} else {
			in.DatePublication = &d
		}
	}

	if len(fields) > 0 {
		return BookInput{}, apperr.InvalidFields("validation failed", fields)
	}
	return in, nil
}

func parsePublicationDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(daterange.DayLayout, v)
}
