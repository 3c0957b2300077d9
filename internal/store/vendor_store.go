package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/procurement-inbox/internal/model"
)

const vendorColumns = `id, name, email, active, created_at, updated_at`

// CreateVendor inserts a new vendor. Generates a UUID if ID is empty and
// lower-cases the email address.
func (s *SQLStore) CreateVendor(ctx context.Context, v *model.Vendor) error {
	v.Email = strings.ToLower(strings.TrimSpace(v.Email))
	if v.Email == "" {
		return fmt.Errorf("vendor email must not be empty")
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO vendors (`+vendorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`),
		v.ID, v.Name, v.Email, v.Active, v.CreatedAt, v.UpdatedAt,
	)
	return wrap("creating vendor "+v.Email, err)
}

// GetVendorByEmail looks up a vendor by exact, case-insensitive email.
// Inactive vendors are returned too.
func (s *SQLStore) GetVendorByEmail(ctx context.Context, email string) (*model.Vendor, error) {
	var v model.Vendor
	err := s.get(ctx, "getting vendor by email", &v,
		`SELECT `+vendorColumns+` FROM vendors WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListActiveVendorEmails returns the addresses of all active vendors.
func (s *SQLStore) ListActiveVendorEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := s.db.SelectContext(ctx, &emails, s.rebind(
		`SELECT email FROM vendors WHERE active = ? ORDER BY email`), true)
	if err != nil {
		return nil, wrap("listing active vendor emails", err)
	}
	return emails, nil
}
