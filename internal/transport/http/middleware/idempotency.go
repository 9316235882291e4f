package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/transport/http/api"
)

const (
	IdempotencyKeyHeader    = "Idempotency-Key"
	IdempotentReplayHeader  = "Idempotent-Replay"
	maxIdempotencyKeyLength = 128
)

var ErrIdempotencyConflict = apperr.InvalidOperation("idempotency key already used with a different payload")

// StoredResponse is the first successful answer to a keyed mutation.
type StoredResponse struct {
	Status int
	Body   json.RawMessage
}

type IdempotencyStore interface {
	Check(ctx context.Context, actorID, endpoint, key, requestHash string) (StoredResponse, bool, error)
	Save(ctx context.Context, actorID, endpoint, key, requestHash string, resp StoredResponse) error
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Idempotency replays the stored response when an authenticated client
// repeats a mutation with the same Idempotency-Key and body. Requests
// without the header, reads, and anonymous callers pass through.
func Idempotency(store IdempotencyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			actor, ok := GetActor(r.Context())
			if key == "" || !ok || !isMutation(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			reqID := GetRequestID(r.Context())
			if len(key) > maxIdempotencyKeyLength {
				api.FailError(w, apperr.Validation("invalid idempotency key",
					apperr.FieldIssue{Field: IdempotencyKeyHeader, Reason: "is too long"}), "invalid_idempotency_key", reqID)
				return
			}

			body, err := readBody(r)
			if err != nil {
				api.FailError(w, apperr.Validation("invalid body", apperr.FieldIssue{Field: "body", Reason: err.Error()}), "invalid_payload", reqID)
				return
			}
			endpoint := r.Method + " " + normalizedAPIPath(r.URL.Path)
			hash := RequestHash(body)

			stored, found, err := store.Check(r.Context(), actor.EmployeeID, endpoint, key, hash)
			if err != nil {
				api.FailError(w, err, "idempotency_check_failed", reqID)
				return
			}
			if found {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotentReplayHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status < 200 || capture.status >= 300 {
				return
			}
			resp := StoredResponse{Status: capture.status, Body: capture.body.Bytes()}
			if err := store.Save(r.Context(), actor.EmployeeID, endpoint, key, hash, resp); err != nil {
				logger.Warn("idempotency save failed", "endpoint", endpoint, "request_id", reqID, "err", err)
			}
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// PGIdempotencyStore keeps responses in the idempotency_keys table.
type PGIdempotencyStore struct {
	db *pgxpool.Pool
}

func NewPGIdempotencyStore(db *pgxpool.Pool) *PGIdempotencyStore {
	return &PGIdempotencyStore{db: db}
}

func (s *PGIdempotencyStore) Check(ctx context.Context, actorID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	var (
		storedHash string
		status     int
		body       []byte
	)
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, status_code, response_json
    FROM idempotency_keys
    WHERE actor_id = $1 AND endpoint = $2 AND key = $3
  `, actorID, endpoint, key).Scan(&storedHash, &status, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, errors.Wrap(err, "check idempotency key")
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return StoredResponse{Status: status, Body: body}, true, nil
}

func (s *PGIdempotencyStore) Save(ctx context.Context, actorID, endpoint, key, requestHash string, resp StoredResponse) error {
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (actor_id, endpoint, key, request_hash, status_code, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (actor_id, endpoint, key)
    DO UPDATE SET response_json = EXCLUDED.response_json, status_code = EXCLUDED.status_code
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, actorID, endpoint, key, requestHash, resp.Status, []byte(resp.Body))
	if err != nil {
		return errors.Wrap(err, "save idempotency key")
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

type idempotencyEntry struct {
	hash string
	resp StoredResponse
}

// MemoryIdempotencyStore backs the in-memory mode. Entries live for the
// process lifetime.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: map[string]idempotencyEntry{}}
}

func idempotencyMapKey(actorID, endpoint, key string) string {
	return actorID + "\x00" + endpoint + "\x00" + key
}

func (s *MemoryIdempotencyStore) Check(_ context.Context, actorID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[idempotencyMapKey(actorID, endpoint, key)]
	if !ok {
		return StoredResponse{}, false, nil
	}
	if entry.hash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return entry.resp, true, nil
}

func (s *MemoryIdempotencyStore) Save(_ context.Context, actorID, endpoint, key, requestHash string, resp StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapKey := idempotencyMapKey(actorID, endpoint, key)
	if entry, ok := s.entries[mapKey]; ok && entry.hash != requestHash {
		return ErrIdempotencyConflict
	}
	body := append(json.RawMessage(nil), resp.Body...)
	s.entries[mapKey] = idempotencyEntry{hash: requestHash, resp: StoredResponse{Status: resp.Status, Body: body}}
	return nil
}
