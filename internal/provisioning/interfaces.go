package provisioning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

// Backend allocates and manages game servers. Both pterodactyl.Client and
// pterodactyl.Mock satisfy it.
type Backend interface {
	EnsureIdentity(ctx context.Context, req pterodactyl.IdentityRequest) (int64, error)
	Allocate(ctx context.Context, req pterodactyl.AllocateRequest) (*pterodactyl.Allocation, error)
	GetServer(ctx context.Context, serverID int64) (*pterodactyl.ServerDetails, error)
	Suspend(ctx context.Context, serverID int64) error
	Unsuspend(ctx context.Context, serverID int64) error
	Delete(ctx context.Context, serverID int64) error
	ResourceUsage(ctx context.Context, identifier string) (*pterodactyl.ResourceUsage, error)
}

var (
	_ Backend = (*pterodactyl.Client)(nil)
	_ Backend = (*pterodactyl.Mock)(nil)
)

// PackageLookup resolves the capacity tier for an order.
type PackageLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Package, error)
}

// UserLookup resolves the order owner for the panel identity.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter = outbox.Emitter

type provisioningMetrics interface {
	ObserveProvisioning(outcome string, duration time.Duration)
}
