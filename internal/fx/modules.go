package fx

import (
	"pp-tracker/internal/api"
	"pp-tracker/internal/config"
	"pp-tracker/internal/database"
	"pp-tracker/internal/logger"
	"pp-tracker/internal/metrics"
	"pp-tracker/internal/repository"
	"pp-tracker/internal/server"
	"pp-tracker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideEngine(
	cfg *config.Config,
	repo *repository.AttributeRepository,
	beatmaps *api.BeatmapDownloader,
	calc *api.CalculatorClient,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *service.Engine {
	return service.NewEngine(repo, beatmaps, calc, calc, m, logger,
		service.WithWorkers(cfg.WorkerCount),
		service.WithAttributeTTL(cfg.AttributeTTL),
	)
}

func ProvideLeaderboardService(osu *api.OsuClient, engine *service.Engine, m *metrics.Metrics, logger zerolog.Logger) *service.LeaderboardService {
	return service.NewLeaderboardService(osu, engine, m, logger)
}

func ProvideTrackerServer(
	board *service.LeaderboardService,
	engine *service.Engine,
	repo *repository.AttributeRepository,
	m *metrics.Metrics,
	cfg *config.Config,
	logger zerolog.Logger,
) *server.TrackerServer {
	return server.NewTrackerServer(board, engine, repo, m, cfg, logger)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	metrics.Module,
	// repos
	fx.Provide(repository.NewAttributeRepository),
	// api clients
	fx.Provide(api.NewOsuClient),
	fx.Provide(api.NewBeatmapDownloader),
	fx.Provide(api.NewCalculatorClient),
	// svc
	fx.Provide(ProvideEngine),
	fx.Provide(ProvideLeaderboardService),
	// server
	fx.Provide(ProvideTrackerServer),
)
