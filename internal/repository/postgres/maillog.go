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
	"github.com/ignite/mailguard/internal/service/maillog"
)

const mailLogColumns = `id, message_id, sender, recipient, subject, status_code, error_message,
	source_file, source_line, type, model_type, model_id, created_at, updated_at`

// MailLogRepo implements maillog.Repository against PostgreSQL.
type MailLogRepo struct{ db *sql.DB }

// NewMailLogRepo creates a Postgres-backed mail log repository.
func NewMailLogRepo(db *sql.DB) *MailLogRepo { return &MailLogRepo{db: db} }

// ScanMailLog reads one mail_logs row selected with the standard column list.
func ScanMailLog(s interface{ Scan(dest ...any) error }) (*domain.MailLog, error) {
	m := &domain.MailLog{}
	var (
		messageID, sender, code, errMsg, file, kind, modelType, modelID sql.NullString
		line                                                            sql.NullInt64
	)
	if err := s.Scan(&m.ID, &messageID, &sender, &m.Recipient, &m.Subject, &code, &errMsg,
		&file, &line, &kind, &modelType, &modelID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.MessageID = nullString(messageID)
	m.Sender = nullString(sender)
	m.StatusCode = nullString(code)
	m.ErrorMessage = nullString(errMsg)
	m.SourceFile = nullString(file)
	m.Kind = nullString(kind)
	if line.Valid {
		n := int(line.Int64)
		m.SourceLine = &n
	}
	if modelType.Valid {
		m.Owner = &domain.OwnerRef{Kind: modelType.String, ID: modelID.String}
	}
	return m, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// OwnerArgs splits an optional owner into its two nullable columns.
func OwnerArgs(o *domain.OwnerRef) (kind, id *string) {
	if o == nil {
		return nil, nil
	}
	return &o.Kind, domain.StringPtr(o.ID)
}

func (r *MailLogRepo) Create(ctx context.Context, m *domain.MailLog) error {
	modelType, modelID := OwnerArgs(m.Owner)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mail_logs (message_id, sender, recipient, subject, status_code, error_message,
			source_file, source_line, type, model_type, model_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, m.MessageID, m.Sender, m.Recipient, m.Subject, m.StatusCode, m.ErrorMessage,
		m.SourceFile, m.SourceLine, m.Kind, modelType, modelID,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if isUniqueViolation(err) {
		return maillog.ErrDuplicateMessageID
	}
	if err != nil {
		return fmt.Errorf("insert mail log: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *MailLogRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.MailLog, error) {
	m, err := ScanMailLog(r.db.QueryRowContext(ctx,
		`SELECT `+mailLogColumns+` FROM mail_logs WHERE message_id = $1`, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, maillog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find mail log: %w", err)
	}
	return m, nil
}

func (r *MailLogRepo) UpdateStatus(ctx context.Context, messageID, code string, errMsg *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mail_logs
		SET status_code = $2, error_message = COALESCE($3, error_message), updated_at = NOW()
		WHERE message_id = $1
	`, messageID, code, errMsg)
	if err != nil {
		return fmt.Errorf("update mail log status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return maillog.ErrNotFound
	}
	return nil
}

// MailLogWhere renders f as a WHERE clause using next to allocate
// placeholders.
func MailLogWhere(f maillog.ListFilter, next func(v any) string) string {
	var where []string
	switch f.Scope {
	case maillog.ScopeSuccessful:
		where = append(where, "status_code = "+next(domain.CodeOK))
	case maillog.ScopeFailed:
		where = append(where, "status_code IS NOT NULL AND status_code <> "+next(domain.CodeOK))
	case maillog.ScopePending:
		where = append(where, "status_code IS NULL")
	}
	if f.Recipient != "" {
		where = append(where, "recipient = "+next(f.Recipient))
	}
	if f.Sender != "" {
		where = append(where, "sender = "+next(f.Sender))
	}
	if f.OwnerKind != "" {
		where = append(where, "model_type = "+next(f.OwnerKind))
		if f.OwnerID != "" {
			where = append(where, "model_id = "+next(f.OwnerID))
		}
	}
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func (r *MailLogRepo) List(ctx context.Context, f maillog.ListFilter) ([]domain.MailLog, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	cond := MailLogWhere(f, next)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mail_logs`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count mail logs: %w", err)
	}

	q := `SELECT ` + mailLogColumns + ` FROM mail_logs` + cond +
		` ORDER BY created_at DESC, id DESC LIMIT ` + next(limit) + ` OFFSET ` + next(f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list mail logs: %w", err)
	}
	defer rows.Close()

	out := []domain.MailLog{}
	for rows.Next() {
		m, err := ScanMailLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan mail log: %w", err)
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

func (r *MailLogRepo) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM mail_logs
		WHERE id IN (SELECT id FROM mail_logs WHERE created_at < $1 ORDER BY id LIMIT $2)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete mail logs: %w", err)
	}
	return res.RowsAffected()
}
