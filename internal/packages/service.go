package packages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
)

// Capacity bounds accepted for a package.
const (
	MinRAMMB  = 512
	MinCPU    = 50
	MaxCPU    = 400
	MinDiskMB = 1024
)

// Service manages the package catalog.
type Service interface {
	List(ctx context.Context) ([]PackageDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*PackageDTO, error)
	Create(ctx context.Context, input PackageInput) (*PackageDTO, error)
	Update(ctx context.Context, id uuid.UUID, input PackageInput) (*PackageDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("packages repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context) ([]PackageDTO, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list packages")
	}
	out := make([]PackageDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PackageDTO, error) {
	pkg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*pkg)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input PackageInput) (*PackageDTO, error) {
	cycle, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	pkg := models.Package{
		Name:          strings.TrimSpace(input.Name),
		Description:   strings.TrimSpace(input.Description),
		RAMMB:         input.RAMMB,
		CPULimit:      input.CPULimit,
		DiskMB:        input.DiskMB,
		BackupSlots:   input.BackupSlots,
		DatabaseLimit: input.DatabaseLimit,
		Price:         input.Price.Round(2),
		BillingCycle:  cycle,
		IsActive:      true,
	}
	if input.IsActive != nil {
		pkg.IsActive = *input.IsActive
	}
	if err := s.repo.Create(ctx, &pkg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create package")
	}
	dto := toDTO(pkg)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input PackageInput) (*PackageDTO, error) {
	cycle, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{
		"name":           strings.TrimSpace(input.Name),
		"description":    strings.TrimSpace(input.Description),
		"ram_mb":         input.RAMMB,
		"cpu_limit":      input.CPULimit,
		"disk_mb":        input.DiskMB,
		"backup_slots":   input.BackupSlots,
		"database_limit": input.DatabaseLimit,
		"price":          input.Price.Round(2),
		"billing_cycle":  cycle,
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	rows, err := s.repo.Update(ctx, id, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update package")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
	}
	return s.Get(ctx, id)
}

// Delete hides the package from the catalog. Existing orders keep referencing it.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	rows, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete package")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	pkg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load package")
	}
	return pkg, nil
}

func validateInput(input PackageInput) (enums.BillingCycle, error) {
	details := map[string]string{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "is required"
	}
	if input.RAMMB < MinRAMMB {
		details["ram_mb"] = fmt.Sprintf("must be at least %d", MinRAMMB)
	}
	if input.CPULimit < MinCPU || input.CPULimit > MaxCPU {
		details["cpu_limit"] = fmt.Sprintf("must be between %d and %d", MinCPU, MaxCPU)
	}
	if input.DiskMB < MinDiskMB {
		details["disk_mb"] = fmt.Sprintf("must be at least %d", MinDiskMB)
	}
	if input.BackupSlots < 0 {
		details["backup_slots"] = "must not be negative"
	}
	if input.DatabaseLimit < 0 {
		details["database_limit"] = "must not be negative"
	}
	if input.Price.IsNegative() {
		details["price"] = "must not be negative"
	}
	cycle, err := enums.ParseBillingCycle(input.BillingCycle)
	if err != nil {
		details["billing_cycle"] = "must be monthly, quarterly or yearly"
	}
	if len(details) > 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid package").WithDetails(details)
	}
	return cycle, nil
}
