package mailbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nhle/procurement-inbox/internal/model"
)

// Message is an inbound email decoded from its raw RFC 5322 form.
type Message struct {
	UID       uint32    `json:"uid"`
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	FromName  string    `json:"from_name,omitempty"`
	To        []string  `json:"to"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`

	// InReplyTo and References carry the message IDs this message answers.
	InReplyTo  []string `json:"in_reply_to,omitempty"`
	References []string `json:"references,omitempty"`

	TextBody    string             `json:"-"`
	HTMLBody    string             `json:"-"`
	Attachments []model.Attachment `json:"attachments,omitempty"`

	// DecodeError is set on placeholders for messages that could not be
	// decoded; RawHeader then holds the undecoded header block.
	DecodeError string `json:"decode_error,omitempty"`
	RawHeader   string `json:"raw_header,omitempty"`
}

// Undecodable reports whether m is a placeholder for a message that failed
// to decode.
func (m *Message) Undecodable() bool {
	return m.DecodeError != ""
}

// BodyText prefers the plain text body, falling back to stripped HTML.
func (m *Message) BodyText() string {
	if m.TextBody != "" {
		return m.TextBody
	}
	return stripHTML(m.HTMLBody)
}

// ThreadIDs returns every message ID this message refers to.
func (m *Message) ThreadIDs() []string {
	ids := make([]string, 0, len(m.InReplyTo)+len(m.References))
	ids = append(ids, m.InReplyTo...)
	ids = append(ids, m.References...)
	return ids
}

// Snapshot returns a JSON rendering of the headers and attachment metadata.
func (m *Message) Snapshot() string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Criteria selects messages on the server.
type Criteria struct {
	// Unseen restricts the search to messages without the \Seen flag.
	Unseen bool

	// SubjectAny matches messages whose subject contains any of the
	// substrings (server-side, case-insensitive).
	SubjectAny []string

	// Limit keeps only the most recent N matches when positive.
	Limit int
}

// DefaultCriteria is the coarse pre-filter for procurement replies: unread
// messages whose subject mentions "RFP" or looks like a reply.
func DefaultCriteria(limit int) Criteria {
	return Criteria{
		Unseen:     true,
		SubjectAny: []string{"RFP", "Re:"},
		Limit:      limit,
	}
}

// Session is an open, authenticated connection with the mailbox selected.
type Session interface {
	// Search returns the matching messages, oldest first. Fetching does not
	// set the \Seen flag.
	Search(ctx context.Context, c Criteria) ([]Message, error)

	MarkSeen(ctx context.Context, uid uint32) error
	MarkUnseen(ctx context.Context, uid uint32) error

	// Close logs out and releases the connection.
	Close() error
}

// Probe is the result of a connection test.
type Probe struct {
	Mailboxes []string `json:"mailboxes"`
	Folder    string   `json:"folder"`
	Messages  uint32   `json:"messages"`
}
