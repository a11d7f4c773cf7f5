package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveLeavesSentinelUntouched(t *testing.T) {
	err := Configuration("n_clusters must be >= 2, got %d", 1)

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NotErrorIs(t, err, ErrDataShape)
	assert.Equal(t, "n_clusters must be >= 2, got 1", err.Detail)
	assert.Empty(t, ErrConfiguration.Detail)

	err.WithContext("n_clusters", 1)
	assert.Empty(t, ErrConfiguration.Context)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]struct {
		err  *Error
		want int
	}{
		"configuration": {Configuration("x"), http.StatusBadRequest},
		"data shape":    {DataShape("x"), http.StatusUnprocessableEntity},
		"not fitted":    {NotFitted(), http.StatusConflict},
		"not found":     {NotFound("x"), http.StatusNotFound},
		"conflict":      {AlreadyExists("x"), http.StatusConflict},
		"auth":          {Unauthenticated("x"), http.StatusUnauthorized},
		"limit":         {LimitExceeded("x"), http.StatusTooManyRequests},
		"unavailable":   {Unavailable("x", nil), http.StatusServiceUnavailable},
		"internal":      {Internal("x", nil), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.HTTPStatus())
		})
	}
}

func TestWrapKeepsType(t *testing.T) {
	inner := NotFound("chat not found")
	wrapped := fmt.Errorf("load: %w", inner)

	e, ok := FromError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, e)
	assert.True(t, IsType(wrapped, ErrNotFound))

	w := WrapInternal(wrapped, "query failed")
	assert.Equal(t, ErrNotFound, w.Type)
	assert.Equal(t, "chat not found", inner.Message)

	plain := WrapInternal(errors.New("boom"), "query failed")
	assert.Equal(t, ErrInternal, plain.Type)
	assert.Equal(t, http.StatusInternalServerError, plain.Code)
	assert.Nil(t, Wrap(nil, ErrInternal, "x"))
}

func TestErrorString(t *testing.T) {
	err := New(ErrInvalidArg, 400, "bad", "detail", errors.New("cause"))
	assert.Equal(t, "[InvalidArg] 400: bad: detail (Cause: cause)", err.Error())
	assert.Equal(t, "Unknown", ErrorType(99).String())
}
