package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/procurement-inbox/internal/model"
	"github.com/nhle/procurement-inbox/internal/store"
)

// NewTestStore creates an in-memory SQLite store with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedVendor inserts an active vendor with the given email.
func SeedVendor(t *testing.T, s store.Store, email string) *model.Vendor {
	t.Helper()

	v := &model.Vendor{Name: email, Email: email, Active: true}
	if err := s.CreateVendor(context.Background(), v); err != nil {
		t.Fatalf("seeding vendor %s: %v", email, err)
	}
	return v
}

// SeedRfp inserts an RFP with a fixed ID and status.
func SeedRfp(t *testing.T, s store.Store, id string, status model.RfpStatus) *model.Rfp {
	t.Helper()

	r := &model.Rfp{ID: id, Title: "RFP " + id, Status: status, Currency: "USD"}
	if err := s.CreateRfp(context.Background(), r); err != nil {
		t.Fatalf("seeding rfp %s: %v", id, err)
	}
	return r
}

// SeedSent records that the RFP was emailed to the vendor at sentAt.
func SeedSent(t *testing.T, s store.Store, rfpID, vendorID string, sentAt time.Time, messageID string) {
	t.Helper()

	err := s.UpsertRfpVendor(context.Background(), model.RfpVendor{
		RfpID:             rfpID,
		VendorID:          vendorID,
		EmailStatus:       model.EmailSent,
		SentAt:            &sentAt,
		OutboundMessageID: messageID,
	})
	if err != nil {
		t.Fatalf("seeding rfp_vendor %s/%s: %v", rfpID, vendorID, err)
	}
}
