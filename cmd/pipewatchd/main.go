package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pipewatch/pkg/bus"
	"pipewatch/pkg/db"
	gos3 "pipewatch/pkg/s3"
	"pipewatch/pkg/telemetry"
	"pipewatch/services/api"
	"pipewatch/services/recorder"
)

const serviceName = "pipewatchd"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "pipewatchd",
		Short:         "Pipeline pressure monitoring and leak-prediction backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file overriding environment values")

	cmd.AddCommand(newServeCommand(&configPath))
	cmd.AddCommand(newMigrateCommand(&configPath))
	return cmd
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()

			_ = godotenv.Load()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			pool, err := db.Open(ctx, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}

			logger.Info().Msg("migrations applied")
			return nil
		},
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the prediction event recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := newLogger()

			_ = godotenv.Load()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}

			shutdownTracing, httpMiddleware, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint, logger)
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracing")
				}
			}()

			pool, err := db.Open(ctx, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}

			store := &api.Store{DB: pool}

			if cfg.ModelBucket != "" {
				s3Client, err := gos3.NewClientFromEnv()
				if err != nil {
					return fmt.Errorf("init s3: %w", err)
				}
				store.S3 = s3Client
			}

			if cfg.NATSURL != "" {
				eventBus, err := bus.Connect(cfg.NATSURL)
				if err != nil {
					return fmt.Errorf("connect nats: %w", err)
				}
				defer eventBus.Close()
				store.Bus = eventBus

				orm, err := gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{
					Logger: gormlogger.Default.LogMode(gormlogger.Silent),
				})
				if err != nil {
					return fmt.Errorf("open gorm: %w", err)
				}

				rec, err := recorder.New(orm, eventBus, logger)
				if err != nil {
					return fmt.Errorf("init recorder: %w", err)
				}
				if err := rec.Start(ctx); err != nil {
					return fmt.Errorf("start recorder: %w", err)
				}
				defer func() {
					if err := rec.Close(); err != nil {
						logger.Error().Err(err).Msg("close recorder")
					}
				}()
			}

			app, err := api.New(store, api.Config{
				JWTSecret:     cfg.JWTSecret,
				TokenTTL:      time.Duration(cfg.TokenTTL),
				ModelsDir:     cfg.ModelsDir,
				ModelBucket:   cfg.ModelBucket,
				Interpreter:   cfg.Interpreter,
				PredictScript: cfg.PredictScript,
				ProxyScript:   cfg.ProxyScript,
				ProxyModel:    cfg.ProxyModel,
				RunTimeout:    time.Duration(cfg.RunTimeout),
			}, logger)
			if err != nil {
				return fmt.Errorf("init api: %w", err)
			}

			routes, err := app.Routes()
			if err != nil {
				return fmt.Errorf("build routes: %w", err)
			}

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpMiddleware(routes),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.Addr).Msg("starting pipewatchd")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}

			logger.Info().Msg("pipewatchd stopped")
			return nil
		},
	}
}
