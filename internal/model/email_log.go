package model

import "time"

// EmailDirection distinguishes received from sent mail in the audit log.
type EmailDirection string

const (
	DirectionInbound  EmailDirection = "INBOUND"
	DirectionOutbound EmailDirection = "OUTBOUND"
)

// EmailLogReceived is the only status the inbound pipeline writes.
const EmailLogReceived = "RECEIVED"

// EmailLog is an immutable audit record of one observed message.
type EmailLog struct {
	ID          string         `db:"id" json:"id"`
	Direction   EmailDirection `db:"direction" json:"direction"`
	FromAddress string         `db:"from_address" json:"from_address"`
	ToAddress   string         `db:"to_address" json:"to_address"`
	Subject     string         `db:"subject" json:"subject"`
	Body        string         `db:"body" json:"body"`
	HTMLBody    string         `db:"html_body" json:"html_body,omitempty"`

	// RawPayload is a JSON snapshot of the parsed message headers and
	// attachment metadata.
	RawPayload string `db:"raw_payload" json:"raw_payload"`

	MessageID   string          `db:"message_id" json:"message_id"`
	Attachments AttachmentsMeta `db:"attachments" json:"attachments"`

	// VendorID and RfpID are set when the message could be resolved.
	VendorID *string `db:"vendor_id" json:"vendor_id,omitempty"`
	RfpID    *string `db:"rfp_id" json:"rfp_id,omitempty"`

	Status     string    `db:"status" json:"status"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
