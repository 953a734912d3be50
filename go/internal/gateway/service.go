package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/christianlewis024/debater/go/internal/membership"
	"github.com/christianlewis024/debater/go/internal/session"
	"github.com/rs/zerolog/log"
)

// Service is the client-facing edge of the coordinator: websocket event
// fanout, snapshot sync, and the HTTP command surface.
type Service struct {
	connectionManager *ConnectionManager
	stateManager      *SessionStateManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	commandHandler    *CommandHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

func NewService(config Config, controller *session.Controller, roles membership.RoleWriter) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	stateManager := NewSessionStateManager()

	eventConsumer, err := NewEventConsumer(connectionManager, stateManager, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Service{
		connectionManager: connectionManager,
		stateManager:      stateManager,
		wsHandler:         NewWebSocketHandler(connectionManager, stateManager, controller),
		eventConsumer:     eventConsumer,
		commandHandler:    NewCommandHandler(controller, stateManager, roles),
	}, nil
}

// Start runs the gateway until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting debate gateway service")

	go s.connectionManager.Start(ctx)

	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("debate gateway service shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("debate gateway service stopped")
	return nil
}

// RegisterRoutes registers the websocket and command routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.commandHandler.RegisterRoutes(mux)
	log.Info().Msg("debate gateway routes registered")
}

// StateManager exposes the ordered state view, mainly for tests.
func (s *Service) StateManager() *SessionStateManager {
	return s.stateManager
}
