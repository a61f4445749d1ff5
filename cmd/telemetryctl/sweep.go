package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/config"
	"github.com/septivank/sensor-telemetry/internal/db"
	"github.com/septivank/sensor-telemetry/internal/repository"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Horizon time.Duration
	DryRun  bool
}

// NewSweepCommand creates the retention sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete readings older than the retention horizon",
		Long: `Delete every reading whose timestamp is older than now minus the horizon.

The horizon defaults to RETENTION_HORIZON (168h). Devices are never removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Horizon, "horizon", 0, "retention horizon (default RETENTION_HORIZON)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the cutoff without deleting")

	return cmd
}

func runSweep(cmd *cobra.Command, opts *SweepOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	horizon := opts.Horizon
	if horizon == 0 {
		horizon = cfg.Retention.Horizon
	}
	if horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %s", horizon)
	}

	cutoff := time.Now().UTC().Add(-horizon)
	out := cmd.OutOrStdout()

	if opts.DryRun {
		fmt.Fprintf(out, "would delete readings before %s\n", cutoff.Format(time.RFC3339))
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	deleted, err := store.PurgeReadingsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	opts.logger.Info("retention sweep finished",
		zap.String("database_driver", cfg.Database.Driver),
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	fmt.Fprintf(out, "deleted %d readings before %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}

// openStore opens the configured backend outside the fx lifecycle
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLiteStore(conn), func() { conn.Close() }, nil
	default:
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
		}
		if err := db.ApplyPostgresSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewPostgresStore(pool), pool.Close, nil
	}
}
