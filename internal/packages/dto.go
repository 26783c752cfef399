package packages

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// PackageDTO is the catalog entry returned to clients.
type PackageDTO struct {
	ID            uuid.UUID          `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	RAMMB         int                `json:"ram_mb"`
	CPULimit      int                `json:"cpu_limit"`
	DiskMB        int                `json:"disk_mb"`
	BackupSlots   int                `json:"backup_slots"`
	DatabaseLimit int                `json:"database_limit"`
	Price         decimal.Decimal    `json:"price"`
	BillingCycle  enums.BillingCycle `json:"billing_cycle"`
	IsActive      bool               `json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// PackageInput carries admin create/update fields.
type PackageInput struct {
	Name          string          `json:"name" validate:"required,min=1,max=100"`
	Description   string          `json:"description" validate:"max=2000"`
	RAMMB         int             `json:"ram_mb" validate:"required,min=512"`
	CPULimit      int             `json:"cpu_limit" validate:"required,min=50,max=400"`
	DiskMB        int             `json:"disk_mb" validate:"required,min=1024"`
	BackupSlots   int             `json:"backup_slots" validate:"min=0"`
	DatabaseLimit int             `json:"database_limit" validate:"min=0"`
	Price         decimal.Decimal `json:"price" validate:"gte=0"`
	BillingCycle  string          `json:"billing_cycle" validate:"required,oneof=monthly quarterly yearly"`
	IsActive      *bool           `json:"is_active,omitempty"`
}

func toDTO(p models.Package) PackageDTO {
	return PackageDTO{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		RAMMB:         p.RAMMB,
		CPULimit:      p.CPULimit,
		DiskMB:        p.DiskMB,
		BackupSlots:   p.BackupSlots,
		DatabaseLimit: p.DatabaseLimit,
		Price:         p.Price,
		BillingCycle:  p.BillingCycle,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
