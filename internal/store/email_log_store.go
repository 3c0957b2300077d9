package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/procurement-inbox/internal/model"
)

const emailLogColumns = `id, direction, from_address, to_address, subject, body, html_body,
	raw_payload, message_id, attachments, vendor_id, rfp_id, status, received_at, created_at`

// CreateEmailLog appends an audit record. Rows are never updated.
func (s *SQLStore) CreateEmailLog(ctx context.Context, l *model.EmailLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Direction == "" {
		l.Direction = model.DirectionInbound
	}
	if l.Status == "" {
		l.Status = model.EmailLogReceived
	}
	if l.RawPayload == "" {
		l.RawPayload = "{}"
	}
	l.CreatedAt = time.Now().UTC()
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = l.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO email_logs (`+emailLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, string(l.Direction), l.FromAddress, l.ToAddress, l.Subject, l.Body, l.HTMLBody,
		l.RawPayload, l.MessageID, l.Attachments, l.VendorID, l.RfpID, l.Status,
		l.ReceivedAt.UTC(), l.CreatedAt,
	)
	return wrap("creating email log", err)
}

// ListEmailLogs returns the most recent audit records, newest first.
// A non-positive limit returns all of them.
func (s *SQLStore) ListEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error) {
	query := `SELECT ` + emailLogColumns + ` FROM email_logs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var logs []model.EmailLog
	if err := s.db.SelectContext(ctx, &logs, s.rebind(query), args...); err != nil {
		return nil, wrap("listing email logs", err)
	}
	return logs, nil
}

// CountEmailLogs returns the total number of audit records.
func (s *SQLStore) CountEmailLogs(ctx context.Context) (int, error) {
	var n int
	if err := s.get(ctx, "counting email logs", &n, `SELECT COUNT(*) FROM email_logs`); err != nil {
		return 0, err
	}
	return n, nil
}
