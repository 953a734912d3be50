package main

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/christianlewis024/debater/go/internal/gateway"
	"github.com/christianlewis024/debater/go/internal/membership"
	"github.com/christianlewis024/debater/go/internal/session"
	"github.com/christianlewis024/debater/go/internal/session/authority"
	"github.com/christianlewis024/debater/go/internal/session/outbox"
	"github.com/christianlewis024/debater/go/internal/session/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Services struct {
	Store      *store.PostgresStore
	Membership *membership.PostgresMembership
	Controller *session.Controller
	Outbox     *outbox.Worker
	Supervisor *authority.Supervisor
	Gateway    *gateway.Service
}

// setupServices wires the dependency chain:
// store → controller → outbox relay / timer supervisor / gateway.
func setupServices(pool *pgxpool.Pool, database *sql.DB, config *Config) (*Services, error) {
	sessionStore := store.NewPostgresStore(pool)
	members := membership.NewPostgresMembership(pool)
	outboxRepo := outbox.NewRepository(database)
	controller := session.NewController(sessionStore, members, outboxRepo, session.DefaultControllerConfig())

	slogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	publisherCfg := outbox.NATSPublisherConfig{
		URL:           config.NATS.URL,
		StreamName:    config.NATS.StreamName,
		SubjectPrefix: config.NATS.SubjectPrefix,
	}
	publisher, err := outbox.NewNATSPublisher(publisherCfg, slogger)
	if err != nil {
		return nil, err
	}
	outboxWorker := outbox.NewWorker(database, publisher, outbox.DefaultConfig(), slogger)

	supervisorCfg := authority.DefaultSupervisorConfig()
	supervisorCfg.Authority.LeaseDuration = config.leaseDuration()
	supervisorCfg.Authority.RenewalInterval = config.renewalInterval()
	supervisorCfg.Authority.TickInterval = config.tickInterval()
	supervisor := authority.NewSupervisor(controller, sessionStore, supervisorCfg)

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.JetStreamConfig.URL = config.NATS.URL
	gatewayCfg.JetStreamConfig.StreamName = config.NATS.StreamName
	gatewayCfg.JetStreamConfig.SubjectFilter = config.NATS.SubjectPrefix + ".>"
	gatewayService, err := gateway.NewService(gatewayCfg, controller, members)
	if err != nil {
		return nil, err
	}

	return &Services{
		Store:      sessionStore,
		Membership: members,
		Controller: controller,
		Outbox:     outboxWorker,
		Supervisor: supervisor,
		Gateway:    gatewayService,
	}, nil
}
