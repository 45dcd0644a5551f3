package main

import (
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"promptkit/internal/config"
	"promptkit/internal/export"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "promptkit-worker").Logger()

	if cfg.Export.CollectorURL == "" {
		logger.Fatal().Msg("TRACE_COLLECTOR_URL is required")
	}

	queueAddr := cfg.Export.QueueAddr
	if queueAddr == "" {
		queueAddr = cfg.Redis.Addr
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     queueAddr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Export.Concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	deliverer := export.NewDeliverer(cfg.Export.CollectorURL, cfg.Export.CollectorKey, logger)

	logger.Info().
		Str("collector", cfg.Export.CollectorURL).
		Int("concurrency", cfg.Export.Concurrency).
		Msg("starting span export worker")
	if err := srv.Run(deliverer.Mux()); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
