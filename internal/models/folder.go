package models

import (
	"time"

	"github.com/customeros/mailstack/internal/utils"
)

// Folder is an IMAP mailbox scoped to one account. Uniqueness is
// (AccountEmail, Name); two accounts may each have a folder named "Archive"
// and they are distinct rows.
type Folder struct {
	ID           string    `json:"id"`
	AccountEmail string    `json:"accountEmail"`
	Name         string    `json:"name"`
	Delimiter    string    `json:"delimiter"`
	Attributes   []string  `json:"attributes"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewFolder(accountEmail, name, delimiter string, attrs []string) *Folder {
	now := utils.Now()
	return &Folder{
		ID:           utils.GenerateNanoIDWithPrefix("fldr", 16),
		AccountEmail: accountEmail,
		Name:         name,
		Delimiter:    delimiter,
		Attributes:   attrs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
