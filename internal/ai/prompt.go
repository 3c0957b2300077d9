package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nhle/procurement-inbox/internal/model"
)

const systemPrompt = `You extract structured data from vendor replies to a Request for Proposal.
Respond with a single JSON object and nothing else, using exactly these keys:
{
  "items": [{"name": string, "quantity": number, "unit": string, "unitPrice": number|null, "totalPrice": number|null, "specifications": string}],
  "totalPrice": number|null,
  "currency": string,
  "deliveryDays": integer|null,
  "warrantyMonths": integer|null,
  "paymentTerms": string,
  "notes": string
}
Use null for numbers the vendor did not state. Do not invent prices. Convert
delivery estimates to calendar days and warranty periods to months. Put
conditions, exclusions and anything else noteworthy in "notes".`

// buildUserPrompt renders the RFP context followed by the vendor's message.
func buildUserPrompt(body string, rfp *model.Rfp) string {
	var b strings.Builder

	if rfp != nil {
		b.WriteString("## RFP\n")
		fmt.Fprintf(&b, "Reference: RFP-%s\n", rfp.ShortCode())
		fmt.Fprintf(&b, "Title: %s\n", rfp.Title)
		if rfp.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", rfp.Description)
		}
		if rfp.Budget != nil {
			fmt.Fprintf(&b, "Budget: %.2f %s\n", *rfp.Budget, rfp.Currency)
		}
		if rfp.DeliveryDays != nil {
			fmt.Fprintf(&b, "Required delivery: %d days\n", *rfp.DeliveryDays)
		}
		if rfp.WarrantyMonths != nil {
			fmt.Fprintf(&b, "Required warranty: %d months\n", *rfp.WarrantyMonths)
		}
		if rfp.PaymentTerms != "" {
			fmt.Fprintf(&b, "Payment terms: %s\n", rfp.PaymentTerms)
		}
		if len(rfp.Items) > 0 {
			b.WriteString("Requested items:\n")
			for _, item := range rfp.Items {
				fmt.Fprintf(&b, "- %s", item.Name)
				if item.Quantity > 0 {
					fmt.Fprintf(&b, " x %g %s", item.Quantity, item.Unit)
				}
				if item.Specifications != "" {
					fmt.Fprintf(&b, " (%s)", item.Specifications)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Vendor response\n")
	b.WriteString(truncate(body, maxBodyChars))

	return b.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
