package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/pkg/models"
)

func TestHTTPErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation maps to 422", models.Validationf("text must not be empty"), http.StatusUnprocessableEntity},
		{"wrapped validation maps to 422", models.Validationf("parent node %d does not exist", 7), http.StatusUnprocessableEntity},
		{"unauthorized maps to 403", models.ErrUnauthorized, http.StatusForbidden},
		{"not found maps to 404", models.ErrNotFound, http.StatusNotFound},
		{"rate limited maps to 429", models.ErrRateLimited, http.StatusTooManyRequests},
		{"unknown maps to 500", errors.New("pq: connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var httpErr *echo.HTTPError
			require.ErrorAs(t, httpError(tc.err), &httpErr)
			assert.Equal(t, tc.code, httpErr.Code)
		})
	}

	t.Run("internal errors do not leak details", func(t *testing.T) {
		var httpErr *echo.HTTPError
		require.ErrorAs(t, httpError(errors.New("pq: secret dsn")), &httpErr)
		assert.Equal(t, "Internal server error", httpErr.Message)
	})
}

func TestPagination(t *testing.T) {
	ctxFor := func(query string) echo.Context {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
		return e.NewContext(req, httptest.NewRecorder())
	}

	t.Run("defaults", func(t *testing.T) {
		page, perPage := pagination(ctxFor(""), 20)
		assert.Equal(t, 1, page)
		assert.Equal(t, 20, perPage)
	})

	t.Run("reads query params", func(t *testing.T) {
		page, perPage := pagination(ctxFor("page=3&per_page=10"), 20)
		assert.Equal(t, 3, page)
		assert.Equal(t, 10, perPage)
	})

	t.Run("rejects junk and out-of-range values", func(t *testing.T) {
		page, perPage := pagination(ctxFor("page=-1&per_page=9999"), 20)
		assert.Equal(t, 1, page)
		assert.Equal(t, 20, perPage)

		page, perPage = pagination(ctxFor("page=abc&per_page=zero"), 20)
		assert.Equal(t, 1, page)
		assert.Equal(t, 20, perPage)
	})
}
