package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/feed"
	fxmodules "battle-tracker/internal/fx"
	"battle-tracker/internal/server"
	"battle-tracker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	srv *server.Server,
	coordinator *service.SyncCoordinator,
	resync *service.Resync,
	feedHub *feed.Hub,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: srv.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := coordinator.Restore(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to restore local snapshot")
			}
			if err := coordinator.Reload(ctx); err != nil {
				logger.Warn().Err(err).Msg("initial load failed, continuing with local state")
			}

			coordinator.Start(context.Background())
			if err := resync.Start(); err != nil {
				return err
			}

			go func() {
				logger.Info().
					Str("addr", httpSrv.Addr).
					Str("access_key", coordinator.AccessKey()).
					Msg("server starting")
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			feedHub.Close()
			err := httpSrv.Shutdown(shutdownCtx)
			if err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}

			if err := resync.Stop(); err != nil {
				logger.Warn().Err(err).Msg("error stopping resync scheduler")
			}
			if err := coordinator.Stop(); err != nil {
				logger.Warn().Err(err).Msg("error stopping commit worker")
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			if err != nil {
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
