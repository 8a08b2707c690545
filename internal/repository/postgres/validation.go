package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/service/validation"
)

const validationColumns = `id, email, domain, status, reason, status_code, last_checked_at, created_at, updated_at`

// ValidationRepo implements validation.Repository against PostgreSQL.
type ValidationRepo struct{ db *sql.DB }

// NewValidationRepo creates a Postgres-backed validation repository.
func NewValidationRepo(db *sql.DB) *ValidationRepo { return &ValidationRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanValidation(s rowScanner) (*domain.Validation, error) {
	v := &domain.Validation{}
	var code sql.NullString
	if err := s.Scan(&v.ID, &v.Email, &v.Domain, &v.Status, &v.Reason, &code,
		&v.LastCheckedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if code.Valid {
		v.StatusCode = &code.String
	}
	return v, nil
}

func (r *ValidationRepo) Find(ctx context.Context, email string) (*domain.Validation, error) {
	v, err := scanValidation(r.db.QueryRowContext(ctx,
		`SELECT `+validationColumns+` FROM email_validations WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, validation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find validation: %w", err)
	}
	return v, nil
}

func (r *ValidationRepo) FindMany(ctx context.Context, emails []string) ([]domain.Validation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+validationColumns+` FROM email_validations WHERE email = ANY($1)`, pq.Array(emails))
	if err != nil {
		return nil, fmt.Errorf("find validations: %w", err)
	}
	defer rows.Close()

	var out []domain.Validation
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// Upsert writes v unless the stored row was checked more recently. In that
// case v is replaced with the stored row.
func (r *ValidationRepo) Upsert(ctx context.Context, v *domain.Validation) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO email_validations (email, domain, status, reason, status_code, last_checked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			domain = EXCLUDED.domain,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			status_code = EXCLUDED.status_code,
			last_checked_at = EXCLUDED.last_checked_at,
			updated_at = NOW()
		WHERE email_validations.last_checked_at <= EXCLUDED.last_checked_at
		RETURNING id, created_at, updated_at
	`, v.Email, v.Domain, v.Status, v.Reason, v.StatusCode, v.LastCheckedAt,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		current, ferr := r.Find(ctx, v.Email)
		if ferr != nil {
			return fmt.Errorf("reload validation: %w", ferr)
		}
		*v = *current
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert validation: %w", err)
	}
	return nil
}

func (r *ValidationRepo) Match(ctx context.Context, email, dom string, status domain.ValidationStatus, since time.Time) (*domain.Validation, error) {
	q := `SELECT ` + validationColumns + ` FROM email_validations WHERE status = $1 AND `
	args := []any{status, email}
	if dom != "" {
		q += `(email = $2 OR domain = $3)`
		args = append(args, dom)
	} else {
		q += `email = $2`
	}
	if !since.IsZero() {
		args = append(args, since)
		q += fmt.Sprintf(` AND last_checked_at > $%d`, len(args))
	}
	q += ` ORDER BY (email = $2) DESC, last_checked_at DESC LIMIT 1`

	v, err := scanValidation(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, validation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("match validation: %w", err)
	}
	return v, nil
}

func (r *ValidationRepo) List(ctx context.Context, f validation.ListFilter) ([]domain.Validation, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Domain != "" {
		args = append(args, f.Domain)
		where = append(where, fmt.Sprintf("domain = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_validations`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count validations: %w", err)
	}

	q := `SELECT ` + validationColumns + ` FROM email_validations` + cond +
		fmt.Sprintf(` ORDER BY last_checked_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	out := []domain.Validation{}
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan validation: %w", err)
		}
		out = append(out, *v)
	}
	return out, total, rows.Err()
}
