package models

import (
	"time"

	"github.com/customeros/mailstack/internal/enum"
)

// OutboxItem is a queued email moving through the send pipeline:
// Outbox APPEND (advisory) -> SMTP send (authoritative) -> Sent APPEND.
// Once SmtpSent is true no further SMTP attempt is ever made for this row.
type OutboxItem struct {
	ID           string       `json:"id"`
	AccountEmail string       `json:"accountEmail"`
	ToAddresses  []string     `json:"toAddresses"`
	CcAddresses  []string     `json:"ccAddresses,omitempty"`
	BccAddresses []string     `json:"bccAddresses,omitempty"`
	Subject      string       `json:"subject"`
	BodyText     string       `json:"bodyText"`
	BodyHTML     string       `json:"bodyHtml"`
	RawMIME      []byte       `json:"-"`
	MessageID    string       `json:"messageId"`

	Status     enum.OutboxStatus `json:"status"`
	RetryCount int               `json:"retryCount"`
	MaxRetries int               `json:"maxRetries"`

	OutboxSaved     bool `json:"outboxSaved"`
	SmtpSent        bool `json:"smtpSent"`
	SentFolderSaved bool `json:"sentFolderSaved"`

	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
