package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/procurement-inbox/internal/mailbox"
)

func TestClassify(t *testing.T) {
	known := NewVendorSet([]string{"Sales@Acme.com", " v1@x.com ", ""})

	tests := []struct {
		name    string
		from    string
		subject string
		want    Reason
	}{
		{"known vendor, unrelated subject", "SALES@acme.com", "Lunch?", ReasonKnownVendor},
		{"short code from stranger", "new@vendor.io", "Re: [rfp-a1b2c3d4] pricing", ReasonShortCode},
		{"keyword proposal", "new@vendor.io", "Our Proposal for chairs", ReasonKeyword},
		{"keyword quote", "new@vendor.io", "QUOTE attached", ReasonKeyword},
		{"keyword rfp", "new@vendor.io", "Question about the RFP", ReasonKeyword},
		{"irrelevant", "news@letter.com", "Weekly digest", ReasonNone},
		{"short code too short", "news@letter.com", "Ticket RF-1234", ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &mailbox.Message{From: tt.from, Subject: tt.subject}
			assert.Equal(t, tt.want, Classify(msg, known))
			assert.Equal(t, tt.want != ReasonNone, IsRelevant(msg, known))
		})
	}
}

func TestNewVendorSet(t *testing.T) {
	set := NewVendorSet([]string{"A@B.com", "", "  "})

	assert.Len(t, set, 1)
	assert.True(t, set.Contains("a@b.COM"))
	assert.False(t, set.Contains(""))
	assert.False(t, NewVendorSet(nil).Contains("a@b.com"))
}

func TestExtractShortCode(t *testing.T) {
	code, ok := ExtractShortCode("RE: RFP - Office Furniture Proposal [RFP-a1b2c3d4]")
	assert.True(t, ok)
	assert.Equal(t, "A1B2C3D4", code)

	_, ok = ExtractShortCode("Re: our quote")
	assert.False(t, ok)
}
