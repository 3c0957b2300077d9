package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/procurement-inbox/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// PersistenceError wraps a failed database operation. The reconciliation
// pipeline treats it as fatal for the current polling cycle.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err (or any error in its chain) is a
// PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Store defines the persistence interface for vendors, RFPs, proposals and
// the email audit log.
type Store interface {
	// === Vendors ===

	CreateVendor(ctx context.Context, v *model.Vendor) error
	GetVendorByEmail(ctx context.Context, email string) (*model.Vendor, error)
	ListActiveVendorEmails(ctx context.Context) ([]string, error)

	// === RFPs ===

	CreateRfp(ctx context.Context, r *model.Rfp) error
	GetRfp(ctx context.Context, id string) (*model.Rfp, error)
	ListRfpsByStatus(ctx context.Context, statuses ...model.RfpStatus) ([]model.Rfp, error)

	// UpsertRfpVendor records the delivery state of an RFP email to a vendor.
	UpsertRfpVendor(ctx context.Context, rv model.RfpVendor) error

	// ListSentRfpIDs returns the IDs of RFPs successfully emailed to the vendor.
	ListSentRfpIDs(ctx context.Context, vendorID string) ([]string, error)

	// LatestSentRfp returns the RFP most recently emailed to the vendor.
	LatestSentRfp(ctx context.Context, vendorID string) (*model.Rfp, error)

	// FindRfpByOutboundMessageIDs returns the RFP whose outbound email to the
	// vendor carried one of the given Message-IDs.
	FindRfpByOutboundMessageIDs(ctx context.Context, vendorID string, messageIDs []string) (*model.Rfp, error)

	// === Proposals ===

	// UpsertProposal inserts the proposal, or overwrites the content of the
	// existing one for the same (RfpID, VendorID). created reports which.
	// p.ID and p.CreatedAt are set to the stored row's values.
	UpsertProposal(ctx context.Context, p *model.Proposal) (created bool, err error)
	GetProposal(ctx context.Context, id string) (*model.Proposal, error)
	GetProposalForPair(ctx context.Context, rfpID, vendorID string) (*model.Proposal, error)
	ListProposalsForRfp(ctx context.Context, rfpID string) ([]model.Proposal, error)
	CountProposals(ctx context.Context) (int, error)

	// === Email log (insert-only) ===

	CreateEmailLog(ctx context.Context, l *model.EmailLog) error
	ListEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error)
	CountEmailLogs(ctx context.Context) (int, error)

	Close() error
}
