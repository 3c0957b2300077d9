package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/procurement-inbox/internal/model"
)

const rfpColumns = `id, title, description, status, items, budget, currency,
	delivery_days, warranty_months, payment_terms, created_at, updated_at`

// rfpColumnsAs qualifies rfpColumns with the table alias r.
var rfpColumnsAs = qualify("r", rfpColumns)

// CreateRfp inserts a new RFP. Generates a UUID if ID is empty.
func (s *SQLStore) CreateRfp(ctx context.Context, r *model.Rfp) error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("rfp title must not be empty")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.RfpStatusDraft
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO rfps (`+rfpColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.Title, r.Description, string(r.Status), r.Items, r.Budget, r.Currency,
		r.DeliveryDays, r.WarrantyMonths, r.PaymentTerms, r.CreatedAt, r.UpdatedAt,
	)
	return wrap("creating rfp", err)
}

// GetRfp retrieves a single RFP by its ID.
func (s *SQLStore) GetRfp(ctx context.Context, id string) (*model.Rfp, error) {
	var r model.Rfp
	err := s.get(ctx, "getting rfp "+id, &r,
		`SELECT `+rfpColumns+` FROM rfps WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRfpsByStatus returns RFPs in any of the given statuses, oldest first.
func (s *SQLStore) ListRfpsByStatus(ctx context.Context, statuses ...model.RfpStatus) ([]model.Rfp, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	query, args, err := sqlx.In(
		`SELECT `+rfpColumns+` FROM rfps WHERE status IN (?) ORDER BY created_at, id`, names)
	if err != nil {
		return nil, fmt.Errorf("building rfp status query: %w", err)
	}

	var rfps []model.Rfp
	if err := s.db.SelectContext(ctx, &rfps, s.rebind(query), args...); err != nil {
		return nil, wrap("listing rfps by status", err)
	}
	return rfps, nil
}

// UpsertRfpVendor inserts or replaces the delivery record for a pair.
func (s *SQLStore) UpsertRfpVendor(ctx context.Context, rv model.RfpVendor) error {
	if rv.EmailStatus == "" {
		rv.EmailStatus = model.EmailPending
	}
	if rv.SentAt != nil {
		sent := rv.SentAt.UTC()
		rv.SentAt = &sent
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO rfp_vendors (rfp_id, vendor_id, email_status, sent_at, outbound_message_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (rfp_id, vendor_id) DO UPDATE SET
			email_status = excluded.email_status,
			sent_at = excluded.sent_at,
			outbound_message_id = excluded.outbound_message_id`),
		rv.RfpID, rv.VendorID, string(rv.EmailStatus), rv.SentAt,
		strings.Trim(rv.OutboundMessageID, "<>"),
	)
	return wrap("upserting rfp vendor", err)
}

// ListSentRfpIDs returns the IDs of RFPs successfully emailed to the vendor.
func (s *SQLStore) ListSentRfpIDs(ctx context.Context, vendorID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, s.rebind(`
		SELECT rfp_id FROM rfp_vendors
		WHERE vendor_id = ? AND email_status = ?
		ORDER BY rfp_id`),
		vendorID, string(model.EmailSent),
	)
	if err != nil {
		return nil, wrap("listing sent rfps", err)
	}
	return ids, nil
}

// LatestSentRfp returns the RFP with the greatest sent_at among those
// successfully emailed to the vendor. The RFP's own status is not checked.
func (s *SQLStore) LatestSentRfp(ctx context.Context, vendorID string) (*model.Rfp, error) {
	var r model.Rfp
	err := s.get(ctx, "getting latest sent rfp", &r, `
		SELECT `+rfpColumnsAs+`
		FROM rfps r
		JOIN rfp_vendors rv ON rv.rfp_id = r.id
		WHERE rv.vendor_id = ? AND rv.email_status = ? AND rv.sent_at IS NOT NULL
		ORDER BY rv.sent_at DESC, r.id DESC
		LIMIT 1`,
		vendorID, string(model.EmailSent),
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FindRfpByOutboundMessageIDs returns the most recently sent RFP whose
// outbound Message-ID to the vendor is in messageIDs.
func (s *SQLStore) FindRfpByOutboundMessageIDs(
	ctx context.Context,
	vendorID string,
	messageIDs []string,
) (*model.Rfp, error) {
	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if id = strings.Trim(strings.TrimSpace(id), "<>"); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}

	query, args, err := sqlx.In(`
		SELECT `+rfpColumnsAs+`
		FROM rfps r
		JOIN rfp_vendors rv ON rv.rfp_id = r.id
		WHERE rv.vendor_id = ? AND rv.outbound_message_id IN (?)
		ORDER BY rv.sent_at DESC, r.id DESC
		LIMIT 1`, vendorID, ids)
	if err != nil {
		return nil, fmt.Errorf("building thread query: %w", err)
	}

	var r model.Rfp
	if err := s.get(ctx, "finding rfp by message id", &r, query, args...); err != nil {
		return nil, err
	}
	return &r, nil
}

// qualify prefixes each column in a comma-separated list with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
