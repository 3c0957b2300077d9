package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nhle/procurement-inbox/internal/model"
)

// ParseMessage decodes a raw RFC 5322 message using go-message. Addresses
// are lower-cased; attachment bodies are read only to measure their size.
func ParseMessage(uid uint32, raw []byte) (Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Message{}, fmt.Errorf("parsing message UID %d: %w", uid, err)
	}
	defer mr.Close()

	msg := Message{UID: uid}
	readHeader(&mr.Header, &msg)

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			// Keep whatever was decoded before the broken part.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain") && msg.TextBody == "":
				msg.TextBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && msg.HTMLBody == "":
				msg.HTMLBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			size, readErr := io.Copy(io.Discard, part.Body)
			if readErr != nil {
				continue
			}

			msg.Attachments = append(msg.Attachments, model.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        size,
			})
		}
	}

	return msg, nil
}

// readHeader copies the envelope fields out of the top-level header.
func readHeader(h *mail.Header, msg *Message) {
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = strings.ToLower(from[0].Address)
		msg.FromName = from[0].Name
	} else {
		msg.From = strings.ToLower(strings.Trim(strings.TrimSpace(h.Get("From")), "<>"))
	}

	if to, err := h.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, strings.ToLower(addr.Address))
		}
	}

	if subject, err := h.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	} else {
		msg.Subject = strings.TrimSpace(h.Get("Subject"))
	}

	if date, err := h.Date(); err == nil {
		msg.Date = date.UTC()
	}

	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil {
		msg.InReplyTo = ids
	}
	if ids, err := h.MsgIDList("References"); err == nil {
		msg.References = ids
	}
}

// maxRawHeader caps the header block kept on an undecodable placeholder.
const maxRawHeader = 8 << 10

// UndecodableMessage builds a placeholder for a message ParseMessage or the
// fetch rejected. Sender, subject and Message-ID are recovered from the raw
// header lines where possible so the audit record stays searchable.
func UndecodableMessage(uid uint32, raw []byte, decodeErr error) Message {
	msg := Message{UID: uid, DecodeError: decodeErr.Error()}

	head := raw
	if i := bytes.Index(head, []byte("\r\n\r\n")); i >= 0 {
		head = head[:i]
	} else if i := bytes.Index(head, []byte("\n\n")); i >= 0 {
		head = head[:i]
	}
	if len(head) > maxRawHeader {
		head = head[:maxRawHeader]
	}
	msg.RawHeader = strings.ToValidUTF8(string(head), "\uFFFD")

	for _, line := range strings.Split(msg.RawHeader, "\n") {
		name, value, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "from":
			if addr, err := mail.ParseAddress(value); err == nil {
				msg.From = strings.ToLower(addr.Address)
			} else {
				msg.From = strings.ToLower(strings.Trim(value, "<>"))
			}
		case "subject":
			msg.Subject = value
		case "message-id":
			msg.MessageID = strings.Trim(value, "<>")
		}
	}

	return msg
}

// blockElements end a line of text when they open or close.
var blockElements = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true,
	atom.Table: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.Blockquote: true, atom.Hr: true,
}

// lineBreaks maps source line breaks to spaces, as a browser would.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// stripHTML renders an HTML body as plain text for the extraction prompt.
// Script and style content is dropped and entities, named or numeric, are
// decoded. Runs of spaces collapse to one; at most one blank line is kept
// between blocks.
func stripHTML(body string) string {
	if body == "" {
		return ""
	}

	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(body))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		switch tt {
		case html.TextToken:
			if skip == 0 {
				b.WriteString(lineBreaks.Replace(string(z.Text())))
			}
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case a == atom.Script || a == atom.Style:
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case a == atom.Td || a == atom.Th:
				if tt == html.EndTagToken {
					b.WriteByte(' ')
				}
			case blockElements[a]:
				if a == atom.Br || a == atom.Hr || tt == html.EndTagToken {
					b.WriteByte('\n')
				}
			}
		}
	}

	return normalizeWhitespace(b.String())
}

// normalizeWhitespace collapses horizontal whitespace within lines and
// squeezes blank lines so that at most one separates paragraphs.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
