package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/service/validation"
)

const validationColumns = `id, email, domain, status, reason, status_code, last_checked_at, created_at, updated_at`

// ValidationRepo implements validation.Repository on SQLite.
type ValidationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewValidationRepo creates a SQLite-backed validation repository.
func NewValidationRepo(db *sql.DB) *ValidationRepo {
	return &ValidationRepo{db: db, now: time.Now}
}

func scanValidation(s interface{ Scan(dest ...any) error }) (*domain.Validation, error) {
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
		`SELECT `+validationColumns+` FROM email_validations WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, validation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find validation: %w", err)
	}
	return v, nil
}

func (r *ValidationRepo) FindMany(ctx context.Context, emails []string) ([]domain.Validation, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	args := make([]any, len(emails))
	for i, e := range emails {
		args[i] = e
	}
	in := strings.TrimSuffix(strings.Repeat("?,", len(emails)), ",")
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+validationColumns+` FROM email_validations WHERE email IN (`+in+`)`, args...)
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

// Upsert writes v unless the stored row was checked more recently, then
// reloads v from the stored row.
func (r *ValidationRepo) Upsert(ctx context.Context, v *domain.Validation) error {
	now := utc(r.now)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_validations (email, domain, status, reason, status_code, last_checked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			domain = excluded.domain,
			status = excluded.status,
			reason = excluded.reason,
			status_code = excluded.status_code,
			last_checked_at = excluded.last_checked_at,
			updated_at = excluded.updated_at
		WHERE email_validations.last_checked_at <= excluded.last_checked_at
	`, v.Email, v.Domain, string(v.Status), v.Reason, v.StatusCode, v.LastCheckedAt.UTC(), now, now)
	if err != nil {
		return fmt.Errorf("upsert validation: %w", err)
	}
	current, err := r.Find(ctx, v.Email)
	if err != nil {
		return fmt.Errorf("reload validation: %w", err)
	}
	*v = *current
	return nil
}

func (r *ValidationRepo) Match(ctx context.Context, email, dom string, status domain.ValidationStatus, since time.Time) (*domain.Validation, error) {
	q := `SELECT ` + validationColumns + ` FROM email_validations WHERE status = ? AND `
	args := []any{string(status)}
	if dom != "" {
		q += `(email = ? OR domain = ?)`
		args = append(args, email, dom)
	} else {
		q += `email = ?`
		args = append(args, email)
	}
	if !since.IsZero() {
		q += ` AND last_checked_at > ?`
		args = append(args, since.UTC())
	}
	q += ` ORDER BY (email = ?) DESC, last_checked_at DESC LIMIT 1`
	args = append(args, email)

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
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, f.Domain)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_validations`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count validations: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+validationColumns+` FROM email_validations`+cond+` ORDER BY last_checked_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
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
