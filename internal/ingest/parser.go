package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// InboundEmail is the transport-independent shape of one inbound message.
// Both the IMAP poller and the webhook endpoint reduce their input to this
// before handing it to the ingestion service.
type InboundEmail struct {
	FromEmail   string
	FromName    string
	Subject     string
	Body        string
	Recipients  []string
	MessageID   string
	InReplyTo   string
	RawHeaders  string
	Attachments []AttachmentPayload
}

// AttachmentPayload carries one attachment's name and bytes.
type AttachmentPayload struct {
	FileName string
	Data     []byte
}

// ParseRaw parses a full RFC 5322 message.
func ParseRaw(raw []byte) (*InboundEmail, error) {
	return ParseMessage(bytes.NewReader(raw))
}

// ParseMessage reads a MIME message into an InboundEmail. Multipart bodies
// prefer the plain-text part and fall back to HTML; quoted reply text is
// stripped and identifier headers are normalized.
func ParseMessage(r io.Reader) (*InboundEmail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	header := mr.Header

	in := &InboundEmail{
		MessageID:  NormalizeMessageID(header.Get("Message-Id")),
		RawHeaders: flattenHeaders(header),
	}

	inReplyTo := header.Get("In-Reply-To")
	if inReplyTo == "" {
		inReplyTo = header.Get("References")
	}
	in.InReplyTo = NormalizeMessageID(inReplyTo)

	if subject, err := header.Subject(); err == nil {
		in.Subject = strings.TrimSpace(subject)
	}
	if in.Subject == "" {
		in.Subject = strings.TrimSpace(header.Get("Subject"))
	}

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		in.FromEmail = strings.ToLower(strings.TrimSpace(from[0].Address))
		in.FromName = strings.TrimSpace(from[0].Name)
	}
	if in.FromName == "" && in.FromEmail != "" {
		in.FromName = localPart(in.FromEmail)
	}

	for _, key := range []string{"To", "Cc"} {
		if addrs, err := header.AddressList(key); err == nil {
			for _, addr := range addrs {
				if addr.Address != "" {
					in.Recipients = append(in.Recipients, strings.ToLower(strings.TrimSpace(addr.Address)))
				}
			}
		}
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed part should not discard what already parsed.
			break
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case contentType == "text/plain" && plain == "":
				plain = string(data)
			case contentType == "text/html" && html == "":
				html = string(data)
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			if name == "" {
				name = "attachment"
			}
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			in.Attachments = append(in.Attachments, AttachmentPayload{FileName: name, Data: data})
		}
	}

	body := plain
	if body == "" {
		body = html
	}
	in.Body = StripReplyQuote(body)
	return in, nil
}

// localPart derives a display name from the address when the sender supplied
// none.
func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func flattenHeaders(header mail.Header) string {
	var b strings.Builder
	fields := header.Fields()
	for fields.Next() {
		b.WriteString(fields.Key())
		b.WriteString(": ")
		b.WriteString(fields.Value())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
