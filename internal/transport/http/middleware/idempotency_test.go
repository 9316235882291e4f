package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/auth"
	"hradmin/internal/platform/requestctx"
)

func TestRequestHashDeterministic(t *testing.T) {
	assert.Equal(t, RequestHash([]byte("payload")), RequestHash([]byte("payload")))
	assert.NotEqual(t, RequestHash([]byte("payload")), RequestHash([]byte("other")))
}

func keyedRequest(body, key, employeeID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	if employeeID != "" {
		req = req.WithContext(requestctx.WithActor(req.Context(), auth.Actor{EmployeeID: employeeID, Role: auth.RoleEmployee}))
	}
	return req
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	calls := 0
	handler := Idempotency(NewMemoryIdempotencyStore(), testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"req-` + payload["type"] + `"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest(`{"type":"leave"}`, "k1", "10004"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, keyedRequest(`{"type":"leave"}`, "k1", "10004"))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(IdempotentReplayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	conflict := httptest.NewRecorder()
	handler.ServeHTTP(conflict, keyedRequest(`{"type":"expense"}`, "k1", "10004"))
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, "invalid_operation", errorCode(t, conflict))

	// Keys are scoped per actor.
	other := httptest.NewRecorder()
	handler.ServeHTTP(other, keyedRequest(`{"type":"expense"}`, "k1", "10005"))
	assert.Equal(t, http.StatusCreated, other.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyPassThrough(t *testing.T) {
	calls := 0
	handler := Idempotency(NewMemoryIdempotencyStore(), testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, req := range []*http.Request{
		keyedRequest(`{}`, "", "10004"),
		keyedRequest(`{}`, "", "10004"),
		keyedRequest(`{}`, "anon", ""),
		keyedRequest(`{}`, "anon", ""),
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 4, calls)
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	status := http.StatusConflict
	handler := Idempotency(NewMemoryIdempotencyStore(), testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(`{}`, "retry", "10004"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	status = http.StatusCreated
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(`{}`, "retry", "10004"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get(IdempotentReplayHeader))
}

func TestIdempotencyRejectsLongKey(t *testing.T) {
	handler := Idempotency(NewMemoryIdempotencyStore(), testLogger())(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(`{}`, strings.Repeat("k", maxIdempotencyKeyLength+1), "10004"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errorCode(t, rec))
}

func TestMemoryIdempotencyStoreConflict(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	ctx := context.Background()
	resp := StoredResponse{Status: http.StatusOK, Body: json.RawMessage(`{"ok":true}`)}
	require.NoError(t, store.Save(ctx, "10004", "POST /requests", "k", "h1", resp))

	got, found, err := store.Check(ctx, "10004", "POST /requests", "k", "h1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, resp, got)

	_, _, err = store.Check(ctx, "10004", "POST /requests", "k", "h2")
	assert.ErrorIs(t, err, apperr.ErrInvalidOperation)
	assert.ErrorIs(t, store.Save(ctx, "10004", "POST /requests", "k", "h2", resp), apperr.ErrInvalidOperation)
}
