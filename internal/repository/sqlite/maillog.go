package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/repository/postgres"
	"github.com/ignite/mailguard/internal/service/maillog"
)

const mailLogColumns = `id, message_id, sender, recipient, subject, status_code, error_message,
	source_file, source_line, type, model_type, model_id, created_at, updated_at`

// MailLogRepo implements maillog.Repository on SQLite. Row layout matches
// the postgres schema, so scanning and filtering are shared with it.
type MailLogRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewMailLogRepo creates a SQLite-backed mail log repository.
func NewMailLogRepo(db *sql.DB) *MailLogRepo {
	return &MailLogRepo{db: db, now: time.Now}
}

func (r *MailLogRepo) Create(ctx context.Context, m *domain.MailLog) error {
	now := utc(r.now)
	modelType, modelID := postgres.OwnerArgs(m.Owner)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO mail_logs (message_id, sender, recipient, subject, status_code, error_message,
			source_file, source_line, type, model_type, model_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.MessageID, m.Sender, m.Recipient, m.Subject, m.StatusCode, m.ErrorMessage,
		m.SourceFile, m.SourceLine, m.Kind, modelType, modelID, now, now)
	if isUniqueViolation(err) {
		return maillog.ErrDuplicateMessageID
	}
	if err != nil {
		return fmt.Errorf("insert mail log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("mail log id: %w", err)
	}
	m.ID = id
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (r *MailLogRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.MailLog, error) {
	m, err := postgres.ScanMailLog(r.db.QueryRowContext(ctx,
		`SELECT `+mailLogColumns+` FROM mail_logs WHERE message_id = ?`, messageID))
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
		SET status_code = ?, error_message = COALESCE(?, error_message), updated_at = ?
		WHERE message_id = ?
	`, code, errMsg, utc(r.now), messageID)
	if err != nil {
		return fmt.Errorf("update mail log status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return maillog.ErrNotFound
	}
	return nil
}

func (r *MailLogRepo) List(ctx context.Context, f maillog.ListFilter) ([]domain.MailLog, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "?"
	}
	cond := postgres.MailLogWhere(f, next)

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
		m, err := postgres.ScanMailLog(rows)
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
		WHERE id IN (SELECT id FROM mail_logs WHERE created_at < ? ORDER BY id LIMIT ?)
	`, cutoff.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("delete mail logs: %w", err)
	}
	return res.RowsAffected()
}
