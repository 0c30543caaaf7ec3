package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/customeros/mailstack/internal/enum"
)

// Message is an email stored in the cache, scoped to (FolderID, UID).
type Message struct {
	ID        string `json:"id"`
	FolderID  string `json:"folderId"`
	UID       uint32 `json:"uid"`
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId,omitempty"`
	InReplyTo string `json:"inReplyTo,omitempty"`

	Direction enum.EmailDirection `json:"direction"`
	Status    enum.EmailStatus    `json:"status"`

	Subject      string   `json:"subject"`
	FromAddress  string   `json:"fromAddress"`
	FromName     string   `json:"fromName"`
	ReplyTo      string   `json:"replyTo,omitempty"`
	ToAddresses  []string `json:"toAddresses"`
	CcAddresses  []string `json:"ccAddresses"`
	BccAddresses []string `json:"bccAddresses"`

	BodyText      string `json:"bodyText"`
	BodyHTML      string `json:"bodyHtml"`
	HasAttachment bool   `json:"hasAttachment"`

	Flags         []string `json:"flags"`
	Size          int      `json:"size"`
	RawHeaders    JSONMap  `json:"rawHeaders,omitempty"`
	BodyStructure JSONMap  `json:"bodyStructure,omitempty"`

	InternalDate time.Time `json:"internalDate"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Classification enum.EmailClassification `json:"classification,omitempty"`
}

// Preview truncates the text body to 200 chars for list/search responses,
// per the cache store's preview vs full read mode.
func (m *Message) Preview() string {
	body := m.BodyText
	if body == "" {
		body = m.BodyHTML
	}
	runes := []rune(body)
	if len(runes) <= 200 {
		return body
	}
	return string(runes[:200]) + "…"
}

func (m *Message) AllRecipients() []string {
	all := make([]string, 0, len(m.ToAddresses)+len(m.CcAddresses)+len(m.BccAddresses))
	all = append(all, m.ToAddresses...)
	all = append(all, m.CcAddresses...)
	all = append(all, m.BccAddresses...)
	return all
}

// BuildHeaders assembles RFC 5322 headers for an outgoing message.
func (m *Message) BuildHeaders() map[string]string {
	header := make(map[string]string)

	if m.FromName != "" {
		header["From"] = fmt.Sprintf("%s <%s>", m.FromName, m.FromAddress)
	} else {
		header["From"] = m.FromAddress
	}

	header["To"] = strings.Join(m.ToAddresses, ", ")
	if len(m.CcAddresses) > 0 {
		header["Cc"] = strings.Join(m.CcAddresses, ", ")
	}

	header["Subject"] = m.Subject
	header["MIME-Version"] = "1.0"

	if m.MessageID != "" {
		header["Message-ID"] = m.MessageID
	}
	if m.InReplyTo != "" {
		header["In-Reply-To"] = m.InReplyTo
		header["References"] = m.InReplyTo
	}
	if m.ReplyTo != "" {
		header["Reply-To"] = m.ReplyTo
	}

	return header
}
