package fx

import (
	"battle-tracker/internal/api"
	"battle-tracker/internal/config"
	"battle-tracker/internal/database"
	"battle-tracker/internal/events"
	"battle-tracker/internal/feed"
	"battle-tracker/internal/logger"
	"battle-tracker/internal/repository"
	"battle-tracker/internal/server"
	"battle-tracker/internal/service"
	"battle-tracker/internal/stats"
	"battle-tracker/internal/telemetry"

	"go.uber.org/fx"
)

func ProvideRemoteStore(client *api.RemoteClient) api.RemoteStore {
	return client
}

func ProvideTelemetrySource(hub *telemetry.Hub) telemetry.Source {
	return hub
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewSnapshotRepository),
	fx.Provide(repository.NewSettingsRepository),
	// remote store
	fx.Provide(api.NewRemoteClient),
	fx.Provide(ProvideRemoteStore),
	// core
	fx.Provide(stats.NewEngine),
	fx.Provide(events.NewBus),
	fx.Provide(telemetry.NewHub),
	fx.Provide(ProvideTelemetrySource),
	// svc
	fx.Provide(service.NewSessionState),
	fx.Provide(service.NewAccessGate),
	fx.Provide(service.ProvideAccessKey),
	fx.Provide(service.NewSyncCoordinator),
	fx.Provide(service.NewQueryService),
	fx.Provide(service.NewTransferService),
	fx.Provide(service.NewTracker),
	fx.Provide(service.NewResync),
	// server
	fx.Provide(feed.NewHub),
	fx.Provide(server.NewServer),
)
