package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebleo/checklist/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", shared.ErrUnauthorized), http.StatusUnauthorized},
		{shared.NewValidationError("title", "bad"), http.StatusBadRequest},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrCSRFTokenMismatch, http.StatusForbidden},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), "error %v", tc.err)
	}
}

func TestProblemWritesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusServiceUnavailable, "Service Unavailable", "queue unavailable")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queue unavailable", body.Detail)
	assert.Equal(t, http.StatusServiceUnavailable, body.Status)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestFailWritesStatusText(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, shared.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}
