package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elid/devicesim/internal/config"
	"github.com/elid/devicesim/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var flagSeed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootConfigPath)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg, flagSeed)
		},
	}
	cmd.Flags().BoolVar(&flagSeed, "seed", false, "also insert the configured seed devices")
	return cmd
}

func runMigrate(ctx context.Context, cfg *config.Config, seed bool) error {
	conn, err := db.Open(ctx, db.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info().Str("path", cfg.Database.Path).Msg("migrations applied")

	if !seed {
		return nil
	}
	n, err := db.SeedDev(ctx, conn, seedOptions(cfg))
	if err != nil {
		return err
	}
	log.Info().Int("inserted", n).Msg("seed devices inserted")
	return nil
}

func seedOptions(cfg *config.Config) db.SeedDevOptions {
	out := make([]db.SeedDevice, 0, len(cfg.Seed.Devices))
	for _, d := range cfg.Seed.Devices {
		out = append(out, db.SeedDevice{
			ID:        d.ID,
			Name:      d.Name,
			Type:      d.Type,
			IPAddress: d.IPAddress,
			Active:    d.Active,
		})
	}
	return db.SeedDevOptions{Devices: out}
}
