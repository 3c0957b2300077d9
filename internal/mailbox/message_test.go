package mailbox

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMessage_MultipartWithAttachment(t *testing.T) {
	raw := crlf(`From: "Acme Sales" <Sales@Acme.COM>
To: Procurement <RFP@Buyer.example>
Subject:  RE: RFP - Office Furniture [RFP-A1B2C3D4]
Date: Tue, 03 Jun 2025 10:15:00 +0200
Message-ID: <reply-1@acme.com>
In-Reply-To: <rfp-out-1@buyer.example>
References: <rfp-out-0@buyer.example> <rfp-out-1@buyer.example>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Total price 4500 USD, delivery in 14 days.
--inner
Content-Type: text/html; charset=utf-8

<p>Total price <b>4500 USD</b></p>
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="quote.pdf"

0123456789
--outer--
`)

	msg, err := ParseMessage(42, raw)
	require.NoError(t, err)

	assert.Equal(t, uint32(42), msg.UID)
	assert.Equal(t, "sales@acme.com", msg.From)
	assert.Equal(t, "Acme Sales", msg.FromName)
	assert.Equal(t, []string{"rfp@buyer.example"}, msg.To)
	assert.Equal(t, "RE: RFP - Office Furniture [RFP-A1B2C3D4]", msg.Subject)
	assert.Equal(t, "reply-1@acme.com", msg.MessageID)
	assert.Equal(t, []string{"rfp-out-1@buyer.example"}, msg.InReplyTo)
	assert.Equal(t, []string{"rfp-out-0@buyer.example", "rfp-out-1@buyer.example"}, msg.References)
	assert.True(t, msg.Date.Equal(time.Date(2025, 6, 3, 8, 15, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, msg.Date.Location())

	assert.Contains(t, msg.TextBody, "Total price 4500 USD")
	assert.Contains(t, msg.HTMLBody, "<b>4500 USD</b>")
	assert.Equal(t, msg.TextBody, msg.BodyText())

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "quote.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Positive(t, msg.Attachments[0].Size)
}

func TestParseMessage_HTMLOnlyFallsBackToStrippedText(t *testing.T) {
	raw := crlf(`From: vendor@example.com
Subject: Quote
Content-Type: text/html; charset=utf-8

<div>Unit price &amp; total:</div><p>120 EUR</p>
`)

	msg, err := ParseMessage(1, raw)
	require.NoError(t, err)

	assert.Empty(t, msg.TextBody)
	assert.Equal(t, "Unit price & total:\n120 EUR", msg.BodyText())
	assert.Empty(t, msg.Attachments)
}

func TestParseMessage_SinglePartPlainText(t *testing.T) {
	raw := crlf(`From: <V1@X.com>
Subject: Re: our quote
Content-Type: text/plain

We can deliver next week.
`)

	msg, err := ParseMessage(7, raw)
	require.NoError(t, err)

	assert.Equal(t, "v1@x.com", msg.From)
	assert.Equal(t, "Re: our quote", msg.Subject)
	assert.Contains(t, msg.BodyText(), "We can deliver next week.")
	assert.True(t, msg.Date.IsZero())
	assert.Empty(t, msg.ThreadIDs())
}

func TestMessage_ThreadIDsAndSnapshot(t *testing.T) {
	msg := Message{
		UID:        3,
		From:       "a@b.com",
		Subject:    "RFP",
		TextBody:   "secret body",
		InReplyTo:  []string{"x@y"},
		References: []string{"w@y", "x@y"},
	}

	assert.Equal(t, []string{"x@y", "w@y", "x@y"}, msg.ThreadIDs())

	snap := msg.Snapshot()
	assert.Contains(t, snap, `"subject":"RFP"`)
	assert.Contains(t, snap, `"in_reply_to":["x@y"]`)
	assert.NotContains(t, snap, "secret body")
}

func TestDefaultCriteria(t *testing.T) {
	c := DefaultCriteria(25)

	assert.True(t, c.Unseen)
	assert.Equal(t, []string{"RFP", "Re:"}, c.SubjectAny)
	assert.Equal(t, 25, c.Limit)
}

func TestToSearchCriteria(t *testing.T) {
	sc := toSearchCriteria(DefaultCriteria(0))
	require.Len(t, sc.NotFlag, 1)
	require.Len(t, sc.Or, 1)
	assert.Equal(t, "RFP", sc.Or[0][0].Header[0].Value)
	assert.Equal(t, "Re:", sc.Or[0][1].Header[0].Value)

	single := toSearchCriteria(Criteria{SubjectAny: []string{"RFP"}})
	assert.Empty(t, single.NotFlag)
	require.Len(t, single.Header, 1)
	assert.Equal(t, "Subject", single.Header[0].Key)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "", stripHTML(""))
	assert.Equal(t, "a\n\nb", stripHTML("<p>a</p><br/>b"))
	assert.Equal(t, `"x" < y`, stripHTML("&quot;x&quot; &lt; y"))
}

func TestStripHTML_RendersForExtraction(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "numeric entities",
			in:   "<p>Total: 1&#160;200 &#8364; &#x2F; unit</p>",
			want: "Total: 1 200 € / unit",
		},
		{
			name: "script and style dropped",
			in:   "<style>p{color:red}</style><p>Delivery 14 days</p><script>var x = 1;</script>",
			want: "Delivery 14 days",
		},
		{
			name: "whitespace collapsed",
			in:   "<div>  Warranty\n\t 24   months </div>",
			want: "Warranty 24 months",
		},
		{
			name: "table rows become lines",
			in:   "<table><tr><td>Chair</td><td>40</td></tr><tr><td>Desk</td><td>250</td></tr></table>",
			want: "Chair 40\nDesk 250",
		},
		{
			name: "blank lines squeezed",
			in:   "<p>a</p><p></p><p></p><br><br><p>b</p>",
			want: "a\n\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.in))
		})
	}
}

func TestUndecodableMessage(t *testing.T) {
	raw := []byte("From: V1 <V1@x.com>\r\nSubject: Re: RFP-A1B2C3D4 quote\r\n" +
		"Message-ID: <abc@x.com>\r\nthis line has no colon\r\n\r\nbody")

	_, err := ParseMessage(7, raw)
	require.Error(t, err)

	msg := UndecodableMessage(7, raw, err)
	assert.True(t, msg.Undecodable())
	assert.Equal(t, uint32(7), msg.UID)
	assert.Equal(t, "v1@x.com", msg.From)
	assert.Equal(t, "Re: RFP-A1B2C3D4 quote", msg.Subject)
	assert.Equal(t, "abc@x.com", msg.MessageID)
	assert.Contains(t, msg.DecodeError, "malformed MIME header line")
	assert.Contains(t, msg.RawHeader, "this line has no colon")
	assert.NotContains(t, msg.RawHeader, "body")
	assert.Contains(t, msg.Snapshot(), `"decode_error"`)
}

func TestUndecodableMessage_NoRawBytes(t *testing.T) {
	msg := UndecodableMessage(3, nil, errors.New("fetched message has no body"))

	assert.True(t, msg.Undecodable())
	assert.Empty(t, msg.RawHeader)
	assert.Empty(t, msg.From)
}

func TestIsConnectionError(t *testing.T) {
	err := &ConnectionError{Op: "login", Addr: "imap.example.com:993", Err: assert.AnError}

	assert.True(t, IsConnectionError(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "login")
	assert.False(t, IsConnectionError(assert.AnError))
}
