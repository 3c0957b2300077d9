package model

import (
	"strings"
	"time"
)

// RfpStatus is the lifecycle state of an RFP.
type RfpStatus string

const (
	RfpStatusDraft      RfpStatus = "DRAFT"
	RfpStatusSent       RfpStatus = "SENT"
	RfpStatusEvaluating RfpStatus = "EVALUATING"
	RfpStatusClosed     RfpStatus = "CLOSED"
)

// ShortCodeLength is the number of trailing identifier characters quoted in
// outbound subjects as "RFP-XXXXXXXX".
const ShortCodeLength = 8

// ActiveRfpStatuses lists the statuses whose RFPs can receive replies.
var ActiveRfpStatuses = []RfpStatus{RfpStatusSent, RfpStatusEvaluating}

// Rfp is a structured procurement request.
type Rfp struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Status      RfpStatus `db:"status" json:"status"`
	Items       LineItems `db:"items" json:"items"`

	// Budget is the maximum spend, if one was stated.
	Budget   *float64 `db:"budget" json:"budget,omitempty"`
	Currency string   `db:"currency" json:"currency"`

	// Required commercial terms.
	DeliveryDays   *int   `db:"delivery_days" json:"delivery_days,omitempty"`
	WarrantyMonths *int   `db:"warranty_months" json:"warranty_months,omitempty"`
	PaymentTerms   string `db:"payment_terms" json:"payment_terms"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ShortCode returns the upper-cased last eight characters of the RFP's
// identifier, or the whole identifier when it is shorter.
func (r *Rfp) ShortCode() string {
	return ShortCodeOf(r.ID)
}

// ShortCodeOf returns the short code for an RFP identifier.
func ShortCodeOf(id string) string {
	if len(id) > ShortCodeLength {
		id = id[len(id)-ShortCodeLength:]
	}
	return strings.ToUpper(id)
}

// IsActive reports whether the RFP accepts vendor replies.
func (r *Rfp) IsActive() bool {
	return r.Status == RfpStatusSent || r.Status == RfpStatusEvaluating
}

// EmailDeliveryStatus tracks delivery of the RFP email to one vendor.
type EmailDeliveryStatus string

const (
	EmailPending EmailDeliveryStatus = "PENDING"
	EmailSent    EmailDeliveryStatus = "SENT"
	EmailFailed  EmailDeliveryStatus = "FAILED"
)

// RfpVendor records that an RFP was addressed to a vendor.
type RfpVendor struct {
	RfpID       string              `db:"rfp_id" json:"rfp_id"`
	VendorID    string              `db:"vendor_id" json:"vendor_id"`
	EmailStatus EmailDeliveryStatus `db:"email_status" json:"email_status"`
	SentAt      *time.Time          `db:"sent_at" json:"sent_at,omitempty"`

	// OutboundMessageID is the Message-ID of the RFP email, used to thread
	// replies that quote it in In-Reply-To or References.
	OutboundMessageID string `db:"outbound_message_id" json:"outbound_message_id"`
}
