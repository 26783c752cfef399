package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// Package is a purchasable server capacity tier.
type Package struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string             `gorm:"column:name;not null"`
	Description   string             `gorm:"column:description;not null;default:''"`
	RAMMB         int                `gorm:"column:ram_mb;not null"`
	CPULimit      int                `gorm:"column:cpu_limit;not null"`
	DiskMB        int                `gorm:"column:disk_mb;not null"`
	BackupSlots   int                `gorm:"column:backup_slots;not null;default:0"`
	DatabaseLimit int                `gorm:"column:database_limit;not null;default:0"`
	Price         decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null"`
	BillingCycle  enums.BillingCycle `gorm:"column:billing_cycle;type:billing_cycle;not null;default:'monthly'"`
	IsActive      bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
