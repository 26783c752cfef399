package servers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

// Service serves customer server views and operator lifecycle actions.
type Service interface {
	ListServers(ctx context.Context, userID uuid.UUID) ([]ServerDTO, error)
	GetServer(ctx context.Context, userID, serverID uuid.UUID) (*ServerDTO, error)
	GetResourceUsage(ctx context.Context, userID, serverID uuid.UUID) (*pterodactyl.ResourceUsage, error)
	GetPanelLink(ctx context.Context, userID, serverID uuid.UUID) (*PanelLink, error)
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
	Suspend(ctx context.Context, serverID uuid.UUID, reason string) (*models.Server, error)
	Unsuspend(ctx context.Context, serverID uuid.UUID) (*models.Server, error)
	SuspendExpired(ctx context.Context, limit int) (int, error)
}

type ServiceParams struct {
	Repo     Repository
	Backend  Backend
	Outbox   outboxEmitter
	TxRunner txRunner
	Logger   *logger.Logger
	// PanelURL builds the end-user panel link for an identifier.
	PanelURL func(identifier string) string
}

type service struct {
	repo     Repository
	backend  Backend
	outbox   outboxEmitter
	tx       txRunner
	logg     *logger.Logger
	panelURL func(string) string
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("servers repository required")
	case params.Backend == nil:
		return nil, fmt.Errorf("provisioning backend required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	panelURL := params.PanelURL
	if panelURL == nil {
		panelURL = func(string) string { return "" }
	}
	return &service{
		repo:     params.Repo,
		backend:  params.Backend,
		outbox:   params.Outbox,
		tx:       params.TxRunner,
		logg:     params.Logger,
		panelURL: panelURL,
		now:      time.Now,
	}, nil
}

func (s *service) ListServers(ctx context.Context, userID uuid.UUID) ([]ServerDTO, error) {
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list servers")
	}
	out := make([]ServerDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDTO())
	}
	return out, nil
}

func (s *service) loadOwned(ctx context.Context, userID, serverID uuid.UUID) (*serverRow, error) {
	row, err := s.repo.FindForUser(ctx, userID, serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load server")
	}
	return row, nil
}

// GetServer returns the stored server enriched with live panel data. Panel
// failures are logged and the stored view is returned.
func (s *service) GetServer(ctx context.Context, userID, serverID uuid.UUID) (*ServerDTO, error) {
	row, err := s.loadOwned(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	dto := row.toDTO()
	if row.BackendServerID == nil {
		return &dto, nil
	}

	logCtx := s.logg.WithField(ctx, "server_id", serverID.String())
	live, err := s.backend.GetServer(ctx, *row.BackendServerID)
	if err != nil {
		s.logg.Warn(logCtx, "panel server lookup failed: "+err.Error())
		return &dto, nil
	}
	dto.Live = live
	if row.ServerIdentifier != nil {
		usage, err := s.backend.ResourceUsage(ctx, *row.ServerIdentifier)
		if err != nil {
			s.logg.Warn(logCtx, "panel resource usage failed: "+err.Error())
		} else {
			dto.ResourceUsage = usage
		}
	}
	return &dto, nil
}

func (s *service) GetResourceUsage(ctx context.Context, userID, serverID uuid.UUID) (*pterodactyl.ResourceUsage, error) {
	row, err := s.loadOwned(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	if row.ServerIdentifier == nil || *row.ServerIdentifier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "server not fully provisioned")
	}
	return s.backend.ResourceUsage(ctx, *row.ServerIdentifier)
}

func (s *service) GetPanelLink(ctx context.Context, userID, serverID uuid.UUID) (*PanelLink, error) {
	row, err := s.loadOwned(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	if row.ServerIdentifier == nil || *row.ServerIdentifier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "server not fully provisioned")
	}
	return &PanelLink{
		PanelURL:         s.panelURL(*row.ServerIdentifier),
		ServerIdentifier: *row.ServerIdentifier,
	}, nil
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	counts, err := s.repo.CountByStatus(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count servers")
	}
	out := &Summary{ByStatus: counts, Active: counts[enums.ServerStatusActive]}
	for _, n := range counts {
		out.Total += n
	}
	return out, nil
}

func (s *service) Suspend(ctx context.Context, serverID uuid.UUID, reason string) (*models.Server, error) {
	return s.changeStatus(ctx, serverID, enums.ServerStatusActive, enums.ServerStatusSuspended, reason)
}

func (s *service) Unsuspend(ctx context.Context, serverID uuid.UUID) (*models.Server, error) {
	return s.changeStatus(ctx, serverID, enums.ServerStatusSuspended, enums.ServerStatusActive, "")
}

// changeStatus applies the panel action first and then records it with a
// compare-and-set, so a row never claims a state the panel does not have.
func (s *service) changeStatus(ctx context.Context, serverID uuid.UUID, from, to enums.ServerStatus, reason string) (*models.Server, error) {
	server, err := s.repo.FindByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load server")
	}
	if server.Status == to {
		return server, nil
	}
	if server.Status != from || !from.CanTransitionTo(to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("server is %s", server.Status))
	}

	if server.BackendServerID != nil {
		if to == enums.ServerStatusSuspended {
			err = s.backend.Suspend(ctx, *server.BackendServerID)
		} else {
			err = s.backend.Unsuspend(ctx, *server.BackendServerID)
		}
		if err != nil {
			return nil, err
		}
	}

	eventType := enums.EventServerSuspended
	if to == enums.ServerStatusActive {
		eventType = enums.EventServerUnsuspended
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, server.ID, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update server status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "server status changed concurrently")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateServer,
			AggregateID:   server.ID,
			Data: payloads.ServerStatusChangedEvent{
				ServerID: server.ID,
				OrderID:  server.OrderID,
				UserID:   server.UserID,
				Status:   to,
				Reason:   reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	server.Status = to

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"server_id": server.ID.String(),
		"status":    to,
	}), "server status changed")
	return server, nil
}

// SuspendExpired suspends active servers whose paid period has ended.
func (s *service) SuspendExpired(ctx context.Context, limit int) (int, error) {
	expired, err := s.repo.ListExpired(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired servers")
	}
	suspended := 0
	var errs error
	for _, server := range expired {
		if _, err := s.Suspend(ctx, server.ID, "billing period ended"); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("suspend %s: %w", server.ID, err))
			continue
		}
		suspended++
	}
	return suspended, errs
}
