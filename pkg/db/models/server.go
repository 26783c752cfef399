package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// Server is the provisioned resource for a completed order. OrderID is unique.
type Server struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	OrderID          uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	PackageID        uuid.UUID          `gorm:"column:package_id;type:uuid;not null"`
	BackendServerID  *int64             `gorm:"column:backend_server_id"`
	ServerIdentifier *string            `gorm:"column:server_identifier"`
	ServerName       string             `gorm:"column:server_name;not null"`
	Status           enums.ServerStatus `gorm:"column:status;type:server_status;not null;default:'provisioning'"`
	IPAddress        *string            `gorm:"column:ip_address"`
	Port             *int               `gorm:"column:port"`
	RAMMB            int                `gorm:"column:ram_mb;not null"`
	CPULimit         int                `gorm:"column:cpu_limit;not null"`
	DiskMB           int                `gorm:"column:disk_mb;not null"`
	ExpiresAt        *time.Time         `gorm:"column:expires_at"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
