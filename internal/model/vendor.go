package model

import "time"

// Vendor is a supplier that RFPs are sent to and proposals are received from.
type Vendor struct {
	// ID is the unique identifier for this vendor.
	ID string `db:"id" json:"id"`

	// Name is the vendor's display name.
	Name string `db:"name" json:"name"`

	// Email is the unique, lower-cased contact address used to match
	// inbound mail to the vendor.
	Email string `db:"email" json:"email"`

	// Active controls whether the vendor counts as a known correspondent
	// for relevance classification.
	Active bool `db:"active" json:"active"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
