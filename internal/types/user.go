package types

import "regexp"

// SteamIDLength is the number of digits in a 64-bit SteamID.
const SteamIDLength = 17

var steamID64Regex = regexp.MustCompile(`^\d{17}$`)

// UserRecord is the per-user document kept in the store and mirrored in the user cache.
// ExternalID is the chat platform identity and the unique key of the record.
// DisplayName is informational, only used when building audit messages.
type UserRecord struct {
	ExternalID       string           `dynamodbav:"external_id" json:"external_id" yaml:"external_id"`
	DisplayName      string           `dynamodbav:"display_name" json:"display_name,omitempty" yaml:"display_name"`
	WhitelistEntries []WhitelistEntry `dynamodbav:"whitelist" json:"whitelist" yaml:"whitelist"`
}

// WhitelistEntry is a registered SteamID with an optional descriptive name.
// Only SteamID takes part in duplicate detection.
type WhitelistEntry struct {
	SteamID string `dynamodbav:"steam_id" json:"steam_id" yaml:"steam_id"`
	Name    string `dynamodbav:"name,omitempty" json:"name,omitempty" yaml:"name,omitempty"`
}

// ValidSteamID reports whether s is a 17 digit SteamID64.
func ValidSteamID(s string) bool {
	return steamID64Regex.MatchString(s)
}

// HasSteamID reports whether the record already whitelists steamID.
func (u UserRecord) HasSteamID(steamID string) bool {
	return IndexOfSteamID(u.WhitelistEntries, steamID) >= 0
}

// IndexOfSteamID returns the position of steamID in entries or -1.
func IndexOfSteamID(entries []WhitelistEntry, steamID string) int {
	for i, e := range entries {
		if e.SteamID == steamID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers may append to WhitelistEntries freely.
func (u UserRecord) Clone() UserRecord {
	c := u
	if u.WhitelistEntries != nil {
		c.WhitelistEntries = make([]WhitelistEntry, len(u.WhitelistEntries))
		copy(c.WhitelistEntries, u.WhitelistEntries)
	}
	return c
}

func (u UserRecord) Validate(maxSlots int) error {
	if u.ExternalID == "" {
		return Err(ErrInvalidConfig, nil, "external_id is required")
	}
	if maxSlots > 0 && len(u.WhitelistEntries) > maxSlots {
		return Err(ErrInvalidConfig, nil, "user %s holds %d entries, limit is %d", u.ExternalID, len(u.WhitelistEntries), maxSlots)
	}
	seen := make(map[string]struct{}, len(u.WhitelistEntries))
	for _, e := range u.WhitelistEntries {
		if !ValidSteamID(e.SteamID) {
			return Err(ErrInvalidConfig, nil, "user %s: malformed steam_id %q", u.ExternalID, e.SteamID)
		}
		if _, dup := seen[e.SteamID]; dup {
			return Err(ErrInvalidConfig, nil, "user %s: duplicate steam_id %s", u.ExternalID, e.SteamID)
		}
		seen[e.SteamID] = struct{}{}
	}
	return nil
}
