package servers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

// Repository persists provisioned servers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, server *models.Server) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Server, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Server, error)
	FindForUser(ctx context.Context, userID, serverID uuid.UUID) (*serverRow, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]serverRow, error)
	// TransitionStatus is a compare-and-set on status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ServerStatus) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Server, error)
	CountByStatus(ctx context.Context, userID uuid.UUID) (map[enums.ServerStatus]int64, error)
}

// Backend is the slice of the panel API used for live data and suspension.
type Backend interface {
	GetServer(ctx context.Context, serverID int64) (*pterodactyl.ServerDetails, error)
	ResourceUsage(ctx context.Context, identifier string) (*pterodactyl.ResourceUsage, error)
	Suspend(ctx context.Context, serverID int64) error
	Unsuspend(ctx context.Context, serverID int64) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter = outbox.Emitter
