package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// Order is a request to provision one server from a package.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	PackageID         uuid.UUID         `gorm:"column:package_id;type:uuid;not null"`
	ServerName        string            `gorm:"column:server_name;not null"`
	TotalPrice        decimal.Decimal   `gorm:"column:total_price;type:numeric(12,2);not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	ProvisionAttempts int               `gorm:"column:provision_attempts;not null;default:0"`
	LastError         *string           `gorm:"column:last_error"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
