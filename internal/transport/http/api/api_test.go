package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/apperr"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestFailErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("bad", apperr.FieldIssue{Field: "name", Reason: "is required"}), http.StatusBadRequest, "validation"},
		{apperr.InvalidOperation("would create a cycle"), http.StatusConflict, "invalid_operation"},
		{fmt.Errorf("wrapped: %w", apperr.InvalidTransition("nope")), http.StatusConflict, "invalid_transition"},
		{apperr.NotFound("employee", "1"), http.StatusNotFound, "not_found"},
		{apperr.Forbidden("no"), http.StatusForbidden, "forbidden"},
		{fmt.Errorf("lock: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "busy"},
		{errors.New("db down"), http.StatusInternalServerError, "fallback"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		FailError(rec, tc.err, "fallback", "req-1")
		assert.Equal(t, tc.status, rec.Code, "err %v", tc.err)
		env := decode(t, rec)
		assert.False(t, env.Success)
		require.NotNil(t, env.Error)
		assert.Equal(t, tc.code, env.Error.Code)
		assert.Equal(t, "req-1", env.RequestID)
	}
}

func TestValidationDetailsIncludeFields(t *testing.T) {
	rec := httptest.NewRecorder()
	FailError(rec, apperr.Validation("bad", apperr.FieldIssue{Field: "email", Reason: "must be a valid email address"}), "x", "")
	assert.Contains(t, rec.Body.String(), `"fields":[{"field":"email","reason":"must be a valid email address"}]`)
}
