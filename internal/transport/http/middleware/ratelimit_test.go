package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/auth"
	"hradmin/internal/platform/requestctx"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestRateLimitByClientIP(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	handler := RateLimit(2, time.Minute, withClock(clock.Now))(okHandler())

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/org/tree", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)
	rec := call("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call("10.0.0.2").Code, "other clients keep their own bucket")

	clock.now = clock.now.Add(30 * time.Second)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code, "one token refilled")
}

func TestRateLimitKeysByActor(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	handler := RateLimit(1, time.Minute, withClock(clock.Now))(okHandler())

	call := func(employeeID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.RemoteAddr = "10.0.0.9:1000"
		req = req.WithContext(requestctx.WithActor(req.Context(), auth.Actor{EmployeeID: employeeID, Role: auth.RoleEmployee}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10001"))
	assert.Equal(t, http.StatusNoContent, call("10002"), "same IP, different actor")
}

func TestSensitiveRateLimitScopes(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   sensitiveScope
	}{
		{http.MethodPost, "/api/v1/auth/login", sensitiveScopeAuth},
		{http.MethodPut, "/api/v1/employees/10003/manager", sensitiveScopeActor},
		{http.MethodDelete, "/api/v1/employees/10003", sensitiveScopeActor},
		{http.MethodPost, "/api/v1/requests/abc/approve", sensitiveScopeActor},
		{http.MethodPost, "/api/v1/requests/abc/cancel/", sensitiveScopeActor},
		{http.MethodPost, "/api/v1/requests", sensitiveScopeNone},
		{http.MethodGet, "/api/v1/employees/10003", sensitiveScopeNone},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Equal(t, tc.want, sensitiveRateScope(req), "%s %s", tc.method, tc.path)
	}
}

func TestSensitiveRateLimitLoginByEmployee(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	var bodies []string
	handler := SensitiveMutationRateLimit(8, time.Minute, withClock(clock.Now))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		w.WriteHeader(http.StatusNoContent)
	}))

	login := func(ip, employeeID string) int {
		body := `{"employeeId":"` + employeeID + `","password":"x"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = ip + ":1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, login("10.0.0.1", "10001"))
	assert.Equal(t, http.StatusNoContent, login("10.0.0.2", "10001"))
	assert.Equal(t, http.StatusTooManyRequests, login("10.0.0.3", "10001"), "login key exhausted across IPs")
	assert.Equal(t, http.StatusNoContent, login("10.0.0.4", "10002"))
	require.NotEmpty(t, bodies)
	assert.Contains(t, bodies[0], `"employeeId":"10001"`, "body is restored for the handler")
}
