// Package classify decides whether an inbound message is procurement
// correspondence worth reconciling.
package classify

import (
	"regexp"
	"strings"

	"github.com/nhle/procurement-inbox/internal/mailbox"
)

// ShortCodePattern matches an RFP short code tag such as RFP-A1B2C3D4.
var ShortCodePattern = regexp.MustCompile(`(?i)RFP-([A-Z0-9]{8})`)

var keywords = []string{"rfp", "proposal", "quote"}

// Reason names the rule that made a message relevant.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonKnownVendor Reason = "known_vendor"
	ReasonShortCode   Reason = "short_code"
	ReasonKeyword     Reason = "keyword"
)

// VendorSet is a set of lower-cased vendor email addresses.
type VendorSet map[string]struct{}

// NewVendorSet builds a set from the given addresses.
func NewVendorSet(emails []string) VendorSet {
	set := make(VendorSet, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// Contains reports whether email is in the set, ignoring case.
func (s VendorSet) Contains(email string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Classify returns the first rule the message satisfies, or ReasonNone.
func Classify(msg *mailbox.Message, known VendorSet) Reason {
	if known.Contains(msg.From) {
		return ReasonKnownVendor
	}
	if ShortCodePattern.MatchString(msg.Subject) {
		return ReasonShortCode
	}
	subject := strings.ToLower(msg.Subject)
	for _, kw := range keywords {
		if strings.Contains(subject, kw) {
			return ReasonKeyword
		}
	}
	return ReasonNone
}

// IsRelevant reports whether the message is from a known vendor or its
// subject looks like procurement correspondence.
func IsRelevant(msg *mailbox.Message, known VendorSet) bool {
	return Classify(msg, known) != ReasonNone
}

// ExtractShortCode returns the upper-cased short code from a subject, if any.
func ExtractShortCode(subject string) (string, bool) {
	m := ShortCodePattern.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}
