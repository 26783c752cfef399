package provisioning

import (
	"context"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/pterodactyl"
)

// NewBackend returns the synthetic backend in mock mode and the panel client
// otherwise.
func NewBackend(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Backend, error) {
	if cfg.Provisioning.MockMode {
		logg.Warn(ctx, "provisioning mock mode enabled; no real servers will be created")
		return pterodactyl.NewMock(), nil
	}
	client, err := pterodactyl.NewClient(ctx, cfg.Pterodactyl, logg)
	if err != nil {
		return nil, err
	}
	return client, nil
}
