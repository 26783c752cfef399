package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

type ServerExpiryJobParams struct {
	Logger    *logger.Logger
	Servers   serverSuspender
	BatchSize int
}

// NewServerExpiryJob suspends active servers whose paid period ended.
func NewServerExpiryJob(params ServerExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Servers == nil {
		return nil, fmt.Errorf("servers service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &serverExpiryJob{logg: params.Logger, servers: params.Servers, batch: batch}, nil
}

type serverExpiryJob struct {
	logg    *logger.Logger
	servers serverSuspender
	batch   int
}

func (j *serverExpiryJob) Name() string { return "server-expiry" }

func (j *serverExpiryJob) Run(ctx context.Context) error {
	suspended, err := j.servers.SuspendExpired(ctx, j.batch)
	if suspended > 0 {
		j.logg.Info(j.logg.WithField(ctx, "servers_suspended", suspended), "suspended expired servers")
	}
	if err != nil {
		return fmt.Errorf("server expiry: %w", err)
	}
	return nil
}
