package imapsession

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	goimap "github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// DecodedAttachment is a MIME part pulled off a fetched message, content
// included; the caller (outbox/syncengine) is responsible for handing the
// bytes to the attachment store.
type DecodedAttachment struct {
	Filename    string
	ContentType string
	ContentID   string
	IsInline    bool
	Content     []byte
}

// DecodedMessage is a fully parsed IMAP fetch result, ready to become a
// models.Message plus zero or more DecodedAttachment.
type DecodedMessage struct {
	UID         uint32
	Flags       []string
	Size        uint32
	Envelope    *goimap.Envelope
	Message     *models.Message
	Attachments []DecodedAttachment
}

func decodeMessage(msg *goimap.Message) (*DecodedMessage, error) {
	if msg == nil || msg.Envelope == nil {
		return nil, fmt.Errorf("fetch response missing envelope")
	}

	m := &models.Message{
		UID:         msg.Uid,
		MessageID:   utils.NormalizeMessageID(msg.Envelope.MessageId),
		Subject:     msg.Envelope.Subject,
		Flags:       msg.Flags,
		Size:        int(msg.Size),
		ToAddresses: addressList(msg.Envelope.To),
		CcAddresses: addressList(msg.Envelope.Cc),
		BccAddresses: addressList(msg.Envelope.Bcc),
	}
	if !msg.InternalDate.IsZero() {
		m.InternalDate = msg.InternalDate
	} else if !msg.Envelope.Date.IsZero() {
		m.InternalDate = msg.Envelope.Date
	}

	if len(msg.Envelope.From) > 0 {
		m.FromName = msg.Envelope.From[0].PersonalName
		m.FromAddress = msg.Envelope.From[0].Address()
	}

	m.InReplyTo = firstReference(msg.Envelope.InReplyTo)

	decoded := &DecodedMessage{UID: msg.Uid, Flags: msg.Flags, Size: msg.Size, Envelope: msg.Envelope, Message: m}

	raw := extractFullMessage(msg)
	if len(raw) == 0 {
		if msg.BodyStructure != nil {
			m.BodyStructure = models.JSONMap(parseBodyStructure(msg.BodyStructure))
		}
		return decoded, nil
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		// malformed MIME: keep the envelope-derived metadata, skip body parsing.
		if msg.BodyStructure != nil {
			m.BodyStructure = models.JSONMap(parseBodyStructure(msg.BodyStructure))
		}
		return decoded, nil
	}

	headers := make(map[string]interface{})
	for _, key := range envelope.GetHeaderKeys() {
		if values := envelope.GetHeaderValues(key); len(values) > 0 {
			headers[key] = values
		}
	}
	m.RawHeaders = models.JSONMap(headers)
	m.BodyText = envelope.Text
	m.BodyHTML = envelope.HTML
	m.BodyStructure = models.JSONMap(bodyStructureFromEnvelope(envelope))

	for _, att := range envelope.Attachments {
		decoded.Attachments = append(decoded.Attachments, DecodedAttachment{
			Filename:    att.FileName,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}
	for _, inline := range envelope.Inlines {
		decoded.Attachments = append(decoded.Attachments, DecodedAttachment{
			Filename:    inline.FileName,
			ContentType: inline.ContentType,
			ContentID:   inline.ContentID,
			IsInline:    true,
			Content:     inline.Content,
		})
	}
	m.HasAttachment = len(decoded.Attachments) > 0

	return decoded, nil
}

func extractFullMessage(msg *goimap.Message) []byte {
	var buf bytes.Buffer
	for section, literal := range msg.Body {
		if section.Peek {
			continue
		}
		if len(section.Path) == 0 && section.Specifier == goimap.EntireSpecifier {
			if data, err := io.ReadAll(literal); err == nil {
				buf.Write(data)
				break
			}
		}
	}
	return buf.Bytes()
}

func bodyStructureFromEnvelope(e *enmime.Envelope) map[string]interface{} {
	out := map[string]interface{}{
		"has_text":        e.Text != "",
		"has_html":        e.HTML != "",
		"has_attachments": len(e.Attachments) > 0 || len(e.Inlines) > 0,
	}
	if ct := e.GetHeader("Content-Type"); ct != "" {
		out["content_type"] = ct
	}
	return out
}

func parseBodyStructure(bs *goimap.BodyStructure) map[string]interface{} {
	if bs == nil {
		return nil
	}
	result := map[string]interface{}{
		"mime_type":    bs.MIMEType,
		"mime_subtype": bs.MIMESubType,
		"size":         bs.Size,
	}
	if bs.Disposition != "" {
		result["disposition"] = bs.Disposition
	}
	if len(bs.Parts) > 0 {
		parts := make([]map[string]interface{}, 0, len(bs.Parts))
		for _, part := range bs.Parts {
			parts = append(parts, parseBodyStructure(part))
		}
		result["parts"] = parts
	}
	return result
}

func addressList(addrs []*goimap.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.MailboxName != "" && a.HostName != "" {
			out = append(out, a.Address())
		}
	}
	return out
}

func firstReference(inReplyTo string) string {
	if inReplyTo == "" {
		return ""
	}
	for _, ref := range strings.Split(inReplyTo, " ") {
		ref = utils.NormalizeMessageID(ref)
		if ref != "" {
			return ref
		}
	}
	return ""
}
