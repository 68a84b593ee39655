package ports

import (
	"context"
	"whitelistbot/internal/types"
)

// UserStore is the durable owner of user records. Implementations MUST make UpdateWhitelist an
// atomic single-document write; no cross-document isolation is expected.
type UserStore interface {
	// FindUser returns the record for externalID, or (nil,nil) when absent.
	FindUser(ctx context.Context, externalID string) (*types.UserRecord, error)

	// ListAllUsers returns every stored record. Used by the cache refresh.
	ListAllUsers(ctx context.Context) ([]types.UserRecord, error)

	// UpdateWhitelist replaces the whole whitelist of one user and returns the updated record.
	// Returns (nil,nil) when no document matches externalID.
	UpdateWhitelist(ctx context.Context, externalID string, entries []types.WhitelistEntry) (*types.UserRecord, error)

	// CreateUser stores rec if no document exists for rec.ExternalID and returns the stored
	// record either way.
	CreateUser(ctx context.Context, rec types.UserRecord) (*types.UserRecord, error)

	// ClearAll purges all user records. Used in tests only.
	ClearAll(ctx context.Context) error
}
