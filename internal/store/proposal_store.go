package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/procurement-inbox/internal/model"
)

const proposalColumns = `id, rfp_id, vendor_id, raw_content, items, total_price, currency,
	delivery_days, warranty_months, payment_terms, notes, status, source_email_log_id,
	received_at, parsed_at, created_at, updated_at`

// UpsertProposal stores the proposal for its (RfpID, VendorID) pair in one
// transaction. The insert is conditional on the pair's unique constraint;
// when it inserts nothing the existing row's content is overwritten. Two
// concurrent calls for the same pair therefore never produce two rows.
func (s *SQLStore) UpsertProposal(ctx context.Context, p *model.Proposal) (bool, error) {
	if p.RfpID == "" || p.VendorID == "" {
		return false, fmt.Errorf("proposal requires rfp and vendor ids")
	}
	if p.Status == "" {
		p.Status = model.ProposalReceived
	}
	now := time.Now().UTC()
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = now
	}
	p.UpdatedAt = now

	newID := uuid.New().String()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, wrap("beginning proposal upsert", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO proposals (`+proposalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (rfp_id, vendor_id) DO NOTHING`),
		newID, p.RfpID, p.VendorID, p.RawContent, p.Items, p.TotalPrice, p.Currency,
		p.DeliveryDays, p.WarrantyMonths, p.PaymentTerms, p.Notes, string(p.Status),
		p.SourceEmailLogID, p.ReceivedAt.UTC(), utcPtr(p.ParsedAt), now, now,
	)
	if err != nil {
		return false, wrap("inserting proposal", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, wrap("inserting proposal", err)
	}
	created := inserted == 1

	if !created {
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE proposals SET
				raw_content = ?, items = ?, total_price = ?, currency = ?,
				delivery_days = ?, warranty_months = ?, payment_terms = ?, notes = ?,
				status = ?, source_email_log_id = ?, received_at = ?, parsed_at = ?,
				updated_at = ?
			WHERE rfp_id = ? AND vendor_id = ?`),
			p.RawContent, p.Items, p.TotalPrice, p.Currency,
			p.DeliveryDays, p.WarrantyMonths, p.PaymentTerms, p.Notes,
			string(p.Status), p.SourceEmailLogID, p.ReceivedAt.UTC(), utcPtr(p.ParsedAt),
			now, p.RfpID, p.VendorID,
		)
		if err != nil {
			return false, wrap("updating proposal", err)
		}
	}

	var row struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err = tx.GetContext(ctx, &row, s.rebind(
		`SELECT id, created_at FROM proposals WHERE rfp_id = ? AND vendor_id = ?`),
		p.RfpID, p.VendorID,
	)
	if err != nil {
		return false, wrap("reading upserted proposal", err)
	}

	if err := tx.Commit(); err != nil {
		return false, wrap("committing proposal upsert", err)
	}

	p.ID = row.ID
	p.CreatedAt = row.CreatedAt
	return created, nil
}

// GetProposal retrieves a single proposal by its ID.
func (s *SQLStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	var p model.Proposal
	err := s.get(ctx, "getting proposal "+id, &p,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProposalForPair retrieves the proposal of a vendor for an RFP.
func (s *SQLStore) GetProposalForPair(ctx context.Context, rfpID, vendorID string) (*model.Proposal, error) {
	var p model.Proposal
	err := s.get(ctx, "getting proposal for pair", &p,
		`SELECT `+proposalColumns+` FROM proposals WHERE rfp_id = ? AND vendor_id = ?`,
		rfpID, vendorID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProposalsForRfp returns every proposal received for an RFP.
func (s *SQLStore) ListProposalsForRfp(ctx context.Context, rfpID string) ([]model.Proposal, error) {
	var proposals []model.Proposal
	err := s.db.SelectContext(ctx, &proposals, s.rebind(
		`SELECT `+proposalColumns+` FROM proposals WHERE rfp_id = ? ORDER BY created_at, id`),
		rfpID)
	if err != nil {
		return nil, wrap("listing proposals", err)
	}
	return proposals, nil
}

// CountProposals returns the total number of proposals.
func (s *SQLStore) CountProposals(ctx context.Context) (int, error) {
	var n int
	if err := s.get(ctx, "counting proposals", &n, `SELECT COUNT(*) FROM proposals`); err != nil {
		return 0, err
	}
	return n, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
