package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/christianlewis024/debater/go/internal/dbconfig"
	"github.com/christianlewis024/debater/go/internal/membership"
	"github.com/christianlewis024/debater/go/internal/session"
	"github.com/christianlewis024/debater/go/internal/session/authority"
	"github.com/christianlewis024/debater/go/internal/session/outbox"
	"github.com/christianlewis024/debater/go/internal/session/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runs the timer authority and the outbox relay. Multiple replicas of this
// process can run at once; the per-session lease keeps exactly one of them
// ticking each session, and row locking keeps the relay from double-sending.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	natsURL := getEnv("NATS_URL", "nats://localhost:4222")
	dbCfg := dbconfig.NewConfigFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create connection pool")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	db, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	sessionStore := store.NewPostgresStore(pool)
	members := membership.NewPostgresMembership(pool)
	outboxRepo := outbox.NewRepository(db)
	controller := session.NewController(sessionStore, members, outboxRepo, session.DefaultControllerConfig())

	// Outbox relay: committed rows -> JetStream.
	slogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	publisherCfg := outbox.DefaultNATSPublisherConfig()
	publisherCfg.URL = natsURL
	publisher, err := outbox.NewNATSPublisher(publisherCfg, slogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create NATS publisher")
	}
	defer publisher.Close()

	worker := outbox.NewWorker(db, publisher, outbox.DefaultConfig(), slogger)
	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start outbox worker")
	}

	supervisor := authority.NewSupervisor(controller, sessionStore, authority.DefaultSupervisorConfig())
	go func() {
		if err := supervisor.Run(ctx); err != nil {
			log.Error().Err(err).Msg("authority supervisor failed")
		}
	}()

	log.Info().
		Str("database", dbCfg.Database).
		Str("nats_url", natsURL).
		Msg("timer authority running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	cancel()
	if err := worker.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop outbox worker")
	}
	time.Sleep(1 * time.Second)

	log.Info().Msg("timer authority shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
