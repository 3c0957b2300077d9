package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// LineItem is one requested or offered item.
type LineItem struct {
	Name           string   `json:"name"`
	Quantity       float64  `json:"quantity,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	UnitPrice      *float64 `json:"unitPrice,omitempty"`
	TotalPrice     *float64 `json:"totalPrice,omitempty"`
	Specifications string   `json:"specifications,omitempty"`
}

// LineItems is stored as a JSON text column.
type LineItems []LineItem

// Value implements driver.Valuer.
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling line items: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *LineItems) Scan(src any) error {
	return scanJSON(src, l)
}

// Attachment is metadata for one message attachment; content is never kept.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// AttachmentsMeta is stored as a JSON text column.
type AttachmentsMeta []Attachment

// Value implements driver.Valuer.
func (a AttachmentsMeta) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling attachments: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *AttachmentsMeta) Scan(src any) error {
	return scanJSON(src, a)
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshaling JSON column: %w", err)
	}
	return nil
}
