package models

import (
	"time"

	"github.com/customeros/mailstack/internal/enum"
)

// Account represents an email account configuration with provider-specific settings.
// The email address, case-folded lower, is the principal identifier; see EmailAddress.
type Account struct {
	EmailAddress string             `json:"emailAddress"`
	DisplayName  string             `json:"displayName"`
	Provider     enum.EmailProvider `json:"provider"`

	ImapHost     string             `json:"imapHost"`
	ImapPort     int                `json:"imapPort"`
	ImapSecurity enum.EmailSecurity `json:"imapSecurity"`
	ImapUsername string             `json:"imapUsername"`

	SmtpHost     string             `json:"smtpHost"`
	SmtpPort     int                `json:"smtpPort"`
	SmtpSecurity enum.EmailSecurity `json:"smtpSecurity"`
	SmtpUsername string             `json:"smtpUsername"`

	// Encrypted at rest; ciphertext carries an ENC: prefix. Exactly one of
	// Password or (OAuthProvider + OAuthRefreshToken) is ever set.
	Password          string     `json:"-"`
	OAuthProvider      string     `json:"oauthProvider,omitempty"`
	OAuthClientID      string     `json:"-"`
	OAuthClientSecret  string     `json:"-"`
	OAuthRefreshToken  string     `json:"-"`
	OAuthAccessToken   string     `json:"-"`
	OAuthTokenExpiry   *time.Time `json:"oauthTokenExpiry,omitempty"`

	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ConnectionStatus    enum.ConnectionStatus `json:"connectionStatus"`
	LastConnectionCheck *time.Time            `json:"lastConnectionCheck,omitempty"`
	ErrorMessage        string                `json:"errorMessage,omitempty"`

	DailySendQuota int        `json:"dailySendQuota"`
	DailySendCount int        `json:"dailySendCount"`
	QuotaResetAt   *time.Time `json:"quotaResetAt,omitempty"`

	// DisplayOrder controls listing order in the dashboard/REST account
	// list; LastCheckedAt is a lighter-weight liveness probe timestamp
	// distinct from LastConnectionCheck's full connection-test timestamp.
	DisplayOrder   int        `json:"displayOrder"`
	LastCheckedAt  *time.Time `json:"lastCheckedAt,omitempty"`
}

// HasCredential reports whether the account can authenticate, per the
// invariant that exactly one of password or OAuth refresh token is set.
func (a *Account) HasCredential() bool {
	if a.Password != "" {
		return true
	}
	return a.OAuthProvider != "" && a.OAuthRefreshToken != ""
}
