package types

import "fmt"

const (
	AuditWhitelistAdd    = "whitelist_add"
	AuditWhitelistRemove = "whitelist_remove"
)

// AuditEvent is one committed whitelist change as reported to the audit sinks.
// Message is the human readable line posted to the log channel.
type AuditEvent struct {
	Type        string `json:"type"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	SteamID     string `json:"steam_id"`
	Message     string `json:"message"`
	At          int64  `json:"at"`
}

// AuditMessage formats the log channel line for a whitelist change.
func AuditMessage(eventType, displayName, steamID string) string {
	verb := "added a steamID to"
	if eventType == AuditWhitelistRemove {
		verb = "removed a steamID from"
	}
	return fmt.Sprintf("User %s %s their whitelist \nSteamID:  `%s`\n", displayName, verb, steamID)
}
