// Package main is the entry point for the casino lobby bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/bot"
	"telegram-casino-bot/internal/config"
	"telegram-casino-bot/internal/events"
	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/game/derby"
	"telegram-casino-bot/internal/game/heist"
	"telegram-casino-bot/internal/game/sicbo"
	"telegram-casino-bot/internal/lobby"
	"telegram-casino-bot/internal/pkg/db"
	"telegram-casino-bot/internal/pkg/lock"
	"telegram-casino-bot/internal/pkg/metrics"
	"telegram-casino-bot/internal/pkg/random"
	"telegram-casino-bot/internal/repository"
	"telegram-casino-bot/internal/service"
)

// startupReconcileLimit bounds how many partially paid sessions are
// re-driven before the bot starts polling.
const startupReconcileLimit = 100

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	settlementRepo := repository.NewSettlementRepository(dbPool.Pool)

	// Services share one per-user lock so lobby and admin movements never interleave.
	userLocks := lock.New[int64]()
	accountService := service.NewAccountService(userRepo, ledgerRepo, userLocks, cfg.Daily.Reward, cfg.Daily.CooldownHours)
	rankingService := service.NewRankingService(userRepo, txRepo, time.Local)
	ledgerService := service.NewLedgerService(ledgerRepo, userLocks)
	auditService := service.NewAuditService(settlementRepo, ledgerService)

	registry, err := registerGames(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register games")
	}
	log.Info().
		Int("game_count", registry.Count()).
		Strs("games", registry.Kinds()).
		Msg("Games registered")

	scheduler := lobby.NewTimerScheduler()
	defer scheduler.Stop()

	manager := lobby.NewManager(registry, ledgerService, random.New(), lobby.Options{
		Scheduler:       scheduler,
		Retry:           cfg.Lobby.Retry.Policy(),
		SimulateTimeout: cfg.Lobby.SimulateTimeout,
	})
	manager.OnPhaseChange(auditService)
	manager.OnPhaseChange(metrics.Default())

	if cfg.Kafka.Enabled() {
		writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
		publisher := events.NewKafkaPublisher(writer, cfg.Kafka.WriteTimeout)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close kafka writer")
			}
		}()
		manager.OnPhaseChange(publisher)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publisher enabled")
	}

	if cfg.Redis.Enabled() {
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, snapshots disabled")
		} else {
			defer rdb.Close()
			manager.OnPhaseChange(events.NewRedisBroadcaster(rdb, cfg.Redis.ChannelPrefix))
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis broadcaster enabled")
		}
	}

	// Re-drive payouts a previous run could not finish.
	if paid, err := auditService.ReconcileAll(ctx, startupReconcileLimit); err != nil {
		log.Error().Err(err).Int("paid", paid).Msg("Startup reconciliation incomplete")
	} else if paid > 0 {
		log.Info().Int("paid", paid).Msg("Startup reconciliation paid outstanding entries")
	}

	telegramBot, err := bot.New(&bot.Dependencies{
		Config:         cfg,
		AccountService: accountService,
		RankingService: rankingService,
		AuditService:   auditService,
		Manager:        manager,
		GameRegistry:   registry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	go manager.RunSweeper(ctx, cfg.Lobby.SweepInterval, cfg.Lobby.MaxAge)

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, dbPool.HealthCheck); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	go telegramBot.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// registerGames builds the configured games.
func registerGames(cfg *config.Config) (*game.Registry, error) {
	registry := game.NewRegistry()

	derbyCfg, err := cfg.Derby()
	if err != nil {
		return nil, err
	}
	derbyGame, err := derby.New(derbyCfg)
	if err != nil {
		return nil, err
	}

	heistCfg, err := cfg.Heist()
	if err != nil {
		return nil, err
	}
	heistGame, err := heist.New(heistCfg)
	if err != nil {
		return nil, err
	}

	sicboGame := sicbo.New(cfg.Games.SicBo.Session.Apply(sicbo.DefaultLobby()))

	for _, g := range []game.Game{derbyGame, heistGame, sicboGame} {
		if err := registry.Register(g); err != nil {
			return nil, fmt.Errorf("register %s: %w", g.Kind(), err)
		}
	}
	return registry, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
