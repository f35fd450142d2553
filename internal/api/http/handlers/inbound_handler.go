package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/ingest"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

const signatureHeader = "X-Webhook-Signature"

// InboundHandler accepts inbound email delivered by a mail provider webhook.
// The same ingestion pipeline behind the IMAP poller runs for each delivery,
// so retries from the provider are absorbed by the message-id ledger.
type InboundHandler struct {
	ingest     *ingest.Service
	webhookKey string
}

// NewInboundHandler constructs handler.
func NewInboundHandler(svc *ingest.Service, webhookKey string) *InboundHandler {
	return &InboundHandler{ingest: svc, webhookKey: webhookKey}
}

// Receive POST /api/inbound/email.
func (h *InboundHandler) Receive(c *fiber.Ctx) error {
	if err := h.verifySignature(c); err != nil {
		return err
	}

	var req dto.InboundEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	in := &ingest.InboundEmail{
		FromEmail:  strings.ToLower(strings.TrimSpace(req.From)),
		FromName:   strings.TrimSpace(req.FromName),
		Subject:    strings.TrimSpace(req.Subject),
		Body:       req.Body,
		Recipients: req.To,
		MessageID:  ingest.NormalizeMessageID(req.MessageID),
		InReplyTo:  ingest.NormalizeMessageID(req.InReplyTo),
		RawHeaders: req.RawHeaders,
	}
	if in.Body == "" && req.HTML != "" {
		in.Body = req.HTML
	}
	if in.MessageID == "" {
		in.MessageID = headerValue(req.RawHeaders, "Message-Id")
	}
	if in.InReplyTo == "" {
		in.InReplyTo = headerValue(req.RawHeaders, "In-Reply-To")
	}
	if in.InReplyTo == "" {
		in.InReplyTo = headerValue(req.RawHeaders, "References")
	}
	if err := h.collectAttachments(c, in); err != nil {
		return err
	}

	result, err := h.ingest.Ingest(c.Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// verifySignature checks the HMAC-SHA256 hex digest of the raw body against
// the shared webhook key. An empty configured key disables verification.
func (h *InboundHandler) verifySignature(c *fiber.Ctx) error {
	if h.webhookKey == "" {
		return nil
	}
	provided := strings.TrimSpace(c.Get(signatureHeader))
	if provided == "" {
		return util.NewUnauthorized("missing webhook signature")
	}

	mac := hmac.New(sha256.New, []byte(h.webhookKey))
	mac.Write(c.Body())
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return util.NewUnauthorized("invalid webhook signature")
	}
	return nil
}

// collectAttachments pulls file parts from a multipart delivery.
func (h *InboundHandler) collectAttachments(c *fiber.Ctx, in *ingest.InboundEmail) error {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	for _, files := range form.File {
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				return util.NewValidationError("unreadable attachment", map[string]any{"file": fh.Filename})
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return util.NewValidationError("unreadable attachment", map[string]any{"file": fh.Filename})
			}
			in.Attachments = append(in.Attachments, ingest.AttachmentPayload{
				FileName: fh.Filename,
				Data:     data,
			})
		}
	}
	return nil
}

// headerValue scans a flattened header blob for the named header.
func headerValue(raw, name string) string {
	for _, line := range strings.Split(raw, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return ingest.NormalizeMessageID(strings.TrimSpace(value))
		}
	}
	return ""
}
