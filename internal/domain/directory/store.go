package directory

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/auth"
)

// PGStore keeps the directory in the employees table.
type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{DB: db}
}

const employeeColumns = `id, name, COALESCE(email, ''), COALESCE(position, ''), COALESCE(department, ''),
       COALESCE(manager_id, ''), role, COALESCE(password_hash, ''), created_at, updated_at`

func (s *PGStore) List(ctx context.Context) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
  `)
	if err != nil {
		return nil, errors.Wrap(err, "list employees")
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan employee")
		}
		out = append(out, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list employees")
	}
	SortByID(out)
	return out, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Employee, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE id = $1
  `, id)
	emp, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrNotFound
	}
	if err != nil {
		return Employee{}, errors.Wrapf(err, "get employee %s", id)
	}
	return emp, nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PGStore) Put(ctx context.Context, emp Employee) error {
	return putEmployee(ctx, s.DB, emp)
}

// PutTx upserts emp as part of tx.
func (s *PGStore) PutTx(ctx context.Context, tx pgx.Tx, emp Employee) error {
	return putEmployee(ctx, tx, emp)
}

func putEmployee(ctx context.Context, db execer, emp Employee) error {
	_, err := db.Exec(ctx, `
    INSERT INTO employees (id, name, email, position, department, manager_id, role, password_hash, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    ON CONFLICT (id) DO UPDATE SET
      name = EXCLUDED.name,
      email = EXCLUDED.email,
      position = EXCLUDED.position,
      department = EXCLUDED.department,
      manager_id = EXCLUDED.manager_id,
      role = EXCLUDED.role,
      password_hash = EXCLUDED.password_hash,
      updated_at = EXCLUDED.updated_at
  `, emp.ID, emp.Name, nullIfEmpty(emp.Email), nullIfEmpty(emp.Position), nullIfEmpty(emp.Department),
		nullIfEmpty(emp.ManagerID), string(emp.Role), nullIfEmpty(emp.PasswordHash), emp.CreatedAt, emp.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "put employee %s", emp.ID)
	}
	return nil
}

func (s *PGStore) Remove(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM employees WHERE id = $1", id)
	if err != nil {
		return errors.Wrapf(err, "remove employee %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var emp Employee
	var role string
	err := row.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Position, &emp.Department,
		&emp.ManagerID, &role, &emp.PasswordHash, &emp.CreatedAt, &emp.UpdatedAt)
	if err != nil {
		return Employee{}, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return Employee{}, errors.Wrapf(err, "employee %s", emp.ID)
	}
	emp.Role = parsed
	return emp, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
