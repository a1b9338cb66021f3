package apperr

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Run("plain error is internal", func(t *testing.T) {
		assert.Equal(t, KindInternal, KindOf(sql.ErrConnDone))
	})

	t.Run("wrapped app error keeps its kind", func(t *testing.T) {
		err := fmt.Errorf("failed to return loan: %w", Conflict("loan %s already returned", "L1"))
		assert.Equal(t, KindConflict, KindOf(err))
		assert.True(t, Is(err, KindConflict))
		assert.False(t, Is(nil, KindConflict))
	})
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalid:         http.StatusBadRequest,
		KindUnauthorized:    http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindTooManyRequests: http.StatusTooManyRequests,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}

func TestInternalUnwrap(t *testing.T) {
	err := Internal(sql.ErrTxDone, "failed to commit")
	require.ErrorIs(t, err, sql.ErrTxDone)
	assert.Contains(t, err.Error(), "failed to commit")
}
