package whitelist

import "fmt"

// Kind classifies the outcome of a whitelist command. Rejections are ordinary results, not
// errors; only InternalError comes with an error value.
type Kind int

const (
	Accepted Kind = iota
	RejectedFormat
	RejectedDuplicate
	RejectedCapacity
	RejectedEmptyInput
	InternalError
	Removed
	RejectedNotFound
)

var StatusTextMap = map[Kind]string{
	Accepted:           "accepted",
	RejectedFormat:     "rejected_format",
	RejectedDuplicate:  "rejected_duplicate",
	RejectedCapacity:   "rejected_capacity",
	RejectedEmptyInput: "rejected_empty_input",
	InternalError:      "internal_error",
	Removed:            "removed",
	RejectedNotFound:   "rejected_not_found",
}

// Result is what a command returns to the dispatcher. SteamID is set for every kind that
// concerns a specific identifier; Current and Max only for RejectedCapacity.
type Result struct {
	Kind    Kind
	SteamID string
	Current int
	Max     int
}

func (r Result) Status() string { return StatusTextMap[r.Kind] }

// OK reports whether the command changed the whitelist.
func (r Result) OK() bool { return r.Kind == Accepted || r.Kind == Removed }

// Message is the text shown to the end user.
func (r Result) Message() string {
	switch r.Kind {
	case Accepted:
		return fmt.Sprintf("Successfully added steamID: `%s`\n"+
			"NOTE: This bot does not know whether the SteamID exists, just that it's correctly formatted.", r.SteamID)
	case Removed:
		return fmt.Sprintf("Successfully removed steamID: `%s`", r.SteamID)
	case RejectedFormat:
		return fmt.Sprintf("❌ `%s` is not a valid steam64ID. It must be a 17 digit number, e.g. `76561198000000000`.", r.SteamID)
	case RejectedDuplicate:
		return fmt.Sprintf("❌ The SteamID `%s` is already among your whitelisted IDs.", r.SteamID)
	case RejectedNotFound:
		return fmt.Sprintf("❌ The SteamID `%s` is not among your whitelisted IDs.", r.SteamID)
	case RejectedCapacity:
		return fmt.Sprintf("You have hit your limit of whitelisted steamIDs(%d/%d). "+
			"Please remove some before attempting to add new ones.", r.Current, r.Max)
	case RejectedEmptyInput:
		return "Please input a value for SteamID."
	default:
		return "Internal server error occurred"
	}
}
