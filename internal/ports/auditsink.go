package ports

import (
	"context"
	"whitelistbot/internal/types"
)

// AuditSink receives committed whitelist changes. Delivery is best effort.
type AuditSink interface {
	Record(ctx context.Context, ev types.AuditEvent) error
}
