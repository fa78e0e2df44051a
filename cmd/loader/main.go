package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"climate-api/internal/config"
	"climate-api/internal/db"
	"climate-api/internal/ingest"
	"climate-api/internal/logging"
	"climate-api/internal/migrate"
	"climate-api/internal/modules/climate/repository"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const appName = "climate-loader"

var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config

	rootCmd := &cobra.Command{
		Use:           "loader",
		Short:         "Load Hawaii climate data into the SQLite store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			// The loader is the only writer.
			loaded.ReadOnly = false
			cfg = loaded

			slog.SetDefault(logging.New(os.Stdout, cfg, version, appName))
			return nil
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), cfg, func(ctx context.Context, conn *sql.DB) error {
				applied, err := migrate.Run(ctx, conn)
				if err != nil {
					return err
				}
				slog.Info("migrations applied", "count", len(applied), "versions", applied)
				return nil
			})
		},
	}

	var stationsPath, measurementsPath string
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load station and measurement CSV files in one transaction",
		Long: "Load station and measurement CSV files in one transaction.\n\n" +
			"Stations are upserted by code. Measurements whose station and date are\n" +
			"already stored are skipped, so loading the same files again adds nothing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			stations, err := os.Open(stationsPath)
			if err != nil {
				return err
			}
			defer stations.Close()
			measurements, err := os.Open(measurementsPath)
			if err != nil {
				return err
			}
			defer measurements.Close()

			return withDB(cmd.Context(), cfg, func(ctx context.Context, conn *sql.DB) error {
				if _, err := migrate.Run(ctx, conn); err != nil {
					return err
				}
				counts, err := ingest.Load(ctx, conn, stations, measurements)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d stations, %d measurements, skipped %d already present\n",
					counts.Stations, counts.Measurements, counts.Skipped)
				return nil
			})
		},
	}
	loadCmd.Flags().StringVar(&stationsPath, "stations", "Resources/hawaii_stations.csv", "path to the stations CSV")
	loadCmd.Flags().StringVar(&measurementsPath, "measurements", "Resources/hawaii_measurements.csv", "path to the measurements CSV")

	subscribeCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Ingest measurements published on the MQTT topic until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			mqttCfg, err := config.WithMQTTFromEnv(cfg)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return withDB(cmd.Context(), mqttCfg, func(ctx context.Context, conn *sql.DB) error {
				handler := ingest.StoreMeasurements(repository.NewRepository(conn))
				sub := ingest.NewSubscriber(mqttCfg, slog.Default(), handler)
				defer sub.Disconnect()

				if err := sub.Connect(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				return ctx.Err()
			})
		},
	}

	rootCmd.AddCommand(migrateCmd, loadCmd, subscribeCmd)
	return rootCmd
}

func withDB(ctx context.Context, cfg config.Config, fn func(ctx context.Context, conn *sql.DB) error) error {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			slog.Error("db close", "error", err)
		}
	}()
	return fn(ctx, conn)
}
