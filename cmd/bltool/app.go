package main

import (
	"context"
	"fmt"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/di"
	"github.com/rs/zerolog/log"
)

// openContainer wires the same dependencies as the server. With loadPrices
// set, the price snapshot is loaded before returning.
func openContainer(ctx context.Context, loadPrices bool) (*di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	c, err := di.Wire(cfg, log.Logger)
	if err != nil {
		return nil, err
	}
	if !loadPrices {
		return c, nil
	}

	if err := c.Snapshot.Reload(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
