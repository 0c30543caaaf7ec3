package utils

import "strings"

// NormalizeMessageID strips surrounding whitespace and RFC 5322 angle
// brackets from a Message-ID/In-Reply-To/References token, so the cache's
// message_id/in_reply_to columns compare equal regardless of how a given
// MTA formatted the header.
func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}
