// internal/httpx/httpx.go
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"unilib/internal/apperr"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes the request body into v. Malformed bodies are Invalid.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("request body is empty")
		}
		return apperr.Invalid("malformed JSON body: %v", err)
	}
	return nil
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteError maps err onto the response. Internal failures are logged with
// their cause and reported with an opaque message.
func WriteError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	kind := apperr.KindOf(err)
	entry := log.WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
		"kind":       kind.String(),
	})

	if kind == apperr.KindInternal {
		entry.WithError(err).Error("request failed")
		WriteJSON(w, kind.HTTPStatus(), errorBody{Error: "internal server error"})
		return
	}

	var appErr *apperr.Error
	errors.As(err, &appErr)
	entry.WithError(err).Debug("request rejected")
	WriteJSON(w, kind.HTTPStatus(), errorBody{Error: appErr.Message, Fields: appErr.Fields})
}
