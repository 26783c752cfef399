package servers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

// ServerDTO is the customer view of a provisioned server.
type ServerDTO struct {
	ID               uuid.UUID          `json:"id"`
	OrderID          uuid.UUID          `json:"order_id"`
	PackageID        uuid.UUID          `json:"package_id"`
	PackageName      string             `json:"package_name"`
	ServerName       string             `json:"server_name"`
	Status           enums.ServerStatus `json:"status"`
	ServerIdentifier *string            `json:"server_identifier,omitempty"`
	IPAddress        *string            `json:"ip_address,omitempty"`
	Port             *int               `json:"port,omitempty"`
	RAMMB            int                `json:"ram_mb"`
	CPULimit         int                `json:"cpu_limit"`
	DiskMB           int                `json:"disk_mb"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`

	Live          *pterodactyl.ServerDetails `json:"live,omitempty"`
	ResourceUsage *pterodactyl.ResourceUsage `json:"resource_usage,omitempty"`
}

// PanelLink points the customer at the panel page for their server.
type PanelLink struct {
	PanelURL         string `json:"panel_url"`
	ServerIdentifier string `json:"server_identifier"`
}

// Summary counts the caller's servers for the dashboard.
type Summary struct {
	Total    int64                        `json:"total"`
	Active   int64                        `json:"active"`
	ByStatus map[enums.ServerStatus]int64 `json:"by_status"`
}

type serverRow struct {
	models.Server
	PackageName string `gorm:"column:package_name"`
}

func (r serverRow) toDTO() ServerDTO {
	return ServerDTO{
		ID:               r.ID,
		OrderID:          r.OrderID,
		PackageID:        r.PackageID,
		PackageName:      r.PackageName,
		ServerName:       r.ServerName,
		Status:           r.Status,
		ServerIdentifier: r.ServerIdentifier,
		IPAddress:        r.IPAddress,
		Port:             r.Port,
		RAMMB:            r.RAMMB,
		CPULimit:         r.CPULimit,
		DiskMB:           r.DiskMB,
		ExpiresAt:        r.ExpiresAt,
		CreatedAt:        r.CreatedAt,
	}
}
