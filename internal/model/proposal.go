package model

import "time"

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus string

const (
	ProposalReceived  ProposalStatus = "RECEIVED"
	ProposalParsed    ProposalStatus = "PARSED"
	ProposalEvaluated ProposalStatus = "EVALUATED"
)

// Proposal is a vendor's response to one RFP. There is at most one
// proposal per (RfpID, VendorID) pair.
type Proposal struct {
	ID       string `db:"id" json:"id"`
	RfpID    string `db:"rfp_id" json:"rfp_id"`
	VendorID string `db:"vendor_id" json:"vendor_id"`

	// RawContent is the message text the structured fields were extracted from.
	RawContent string `db:"raw_content" json:"raw_content"`

	Items          LineItems `db:"items" json:"items"`
	TotalPrice     *float64  `db:"total_price" json:"total_price,omitempty"`
	Currency       string    `db:"currency" json:"currency"`
	DeliveryDays   *int      `db:"delivery_days" json:"delivery_days,omitempty"`
	WarrantyMonths *int      `db:"warranty_months" json:"warranty_months,omitempty"`
	PaymentTerms   string    `db:"payment_terms" json:"payment_terms"`
	Notes          string    `db:"notes" json:"notes"`

	Status ProposalStatus `db:"status" json:"status"`

	// SourceEmailLogID links to the audit row of the message that last
	// wrote this proposal.
	SourceEmailLogID string `db:"source_email_log_id" json:"source_email_log_id"`

	ReceivedAt time.Time  `db:"received_at" json:"received_at"`
	ParsedAt   *time.Time `db:"parsed_at" json:"parsed_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// ParsedProposal holds the fields extracted from a vendor reply by the AI
// parsing service.
type ParsedProposal struct {
	Items          LineItems `json:"items"`
	TotalPrice     *float64  `json:"totalPrice"`
	Currency       string    `json:"currency"`
	DeliveryDays   *int      `json:"deliveryDays"`
	WarrantyMonths *int      `json:"warrantyMonths"`
	PaymentTerms   string    `json:"paymentTerms"`
	Notes          string    `json:"notes"`
}

// Apply copies the parsed fields onto p and marks it parsed at now.
func (pp *ParsedProposal) Apply(p *Proposal, now time.Time) {
	p.Items = pp.Items
	p.TotalPrice = pp.TotalPrice
	p.Currency = pp.Currency
	p.DeliveryDays = pp.DeliveryDays
	p.WarrantyMonths = pp.WarrantyMonths
	p.PaymentTerms = pp.PaymentTerms
	p.Notes = pp.Notes
	p.Status = ProposalParsed
	p.ParsedAt = &now
}
