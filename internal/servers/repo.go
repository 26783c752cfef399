package servers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository builds the server repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) Create(ctx context.Context, server *models.Server) error {
	return r.db.WithContext(ctx).Create(server).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	var server models.Server
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&server).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Server, error) {
	var server models.Server
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&server).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *repository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("servers").
		Select("servers.*, packages.name AS package_name").
		Joins("JOIN packages ON packages.id = servers.package_id")
}

func (r *repository) FindForUser(ctx context.Context, userID, serverID uuid.UUID) (*serverRow, error) {
	var rows []serverRow
	err := r.baseQuery(ctx).
		Where("servers.id = ? AND servers.user_id = ?", serverID, userID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]serverRow, error) {
	var rows []serverRow
	err := r.baseQuery(ctx).
		Where("servers.user_id = ?", userID).
		Order("servers.created_at DESC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ServerStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Server{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": r.now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Server, error) {
	var rows []models.Server
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.ServerStatusActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountByStatus(ctx context.Context, userID uuid.UUID) (map[enums.ServerStatus]int64, error) {
	var rows []struct {
		Status enums.ServerStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Server{}).
		Select("status, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.ServerStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}
