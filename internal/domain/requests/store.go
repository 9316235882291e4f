package requests

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaVersion is written with every row so older payload shapes can be
// told apart after a details variant changes.
const SchemaVersion = 1

// PGStore keeps requests in the requests table with details and history as
// JSONB.
type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{DB: db}
}

const requestColumns = `id, user_id, type, status, details, history, COALESCE(approver_id, ''), created_at, updated_at`

func (s *PGStore) List(ctx context.Context) ([]Request, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+requestColumns+`
    FROM requests
    ORDER BY created_at DESC, id
  `)
	if err != nil {
		return nil, errors.Wrap(err, "list requests")
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan request")
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list requests")
	}
	return out, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Request, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM requests
    WHERE id = $1
  `, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, errors.Wrapf(err, "get request %s", id)
	}
	return req, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PGStore) Put(ctx context.Context, req Request) error {
	return putRequest(ctx, s.DB, req)
}

// PutTx upserts req as part of tx.
func (s *PGStore) PutTx(ctx context.Context, tx pgx.Tx, req Request) error {
	return putRequest(ctx, tx, req)
}

// ExistsTx reports whether id is already stored, as seen by tx.
func (s *PGStore) ExistsTx(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)", id).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check request %s", id)
	}
	return exists, nil
}

func putRequest(ctx context.Context, db execer, req Request) error {
	details, err := json.Marshal(req.Details)
	if err != nil {
		return errors.Wrapf(err, "encode details of request %s", req.ID)
	}
	history := req.History
	if history == nil {
		history = []Transition{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return errors.Wrapf(err, "encode history of request %s", req.ID)
	}
	var approver any
	if req.ApproverID != "" {
		approver = req.ApproverID
	}
	_, err = db.Exec(ctx, `
    INSERT INTO requests (id, user_id, type, status, details, history, approver_id, schema_version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    ON CONFLICT (id) DO UPDATE SET
      status = EXCLUDED.status,
      details = EXCLUDED.details,
      history = EXCLUDED.history,
      approver_id = EXCLUDED.approver_id,
      schema_version = EXCLUDED.schema_version,
      updated_at = EXCLUDED.updated_at
  `, req.ID, req.UserID, string(req.Type), string(req.Status), details, historyJSON, approver,
		SchemaVersion, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "put request %s", req.ID)
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req         Request
		typ, status string
		details     []byte
		history     []byte
	)
	if err := row.Scan(&req.ID, &req.UserID, &typ, &status, &details, &history,
		&req.ApproverID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return Request{}, err
	}
	req.Type = Type(typ)
	if !req.Type.Valid() {
		return Request{}, errors.Errorf("request %s: unknown type %q", req.ID, typ)
	}
	req.Status = Status(status)
	if !req.Status.Valid() {
		return Request{}, errors.Errorf("request %s: unknown status %q", req.ID, status)
	}
	decoded, err := DecodeDetails(req.Type, details)
	if err != nil {
		return Request{}, errors.Wrapf(err, "request %s details", req.ID)
	}
	req.Details = decoded
	if len(history) > 0 {
		if err := json.Unmarshal(history, &req.History); err != nil {
			return Request{}, errors.Wrapf(err, "request %s history", req.ID)
		}
	}
	return req, nil
}
