package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizroom/internal/content"
	"github.com/mcdev12/quizroom/internal/gateway"
	"github.com/mcdev12/quizroom/internal/httpapi"
	"github.com/mcdev12/quizroom/internal/outbox"
	"github.com/mcdev12/quizroom/internal/room"
	"github.com/mcdev12/quizroom/internal/room/memory"
	"github.com/mcdev12/quizroom/internal/room/postgres"
	"github.com/mcdev12/quizroom/internal/room/redisstore"
)

// Services holds the wired application graph. Relay and Consumer are nil
// when the configuration runs without Postgres or JetStream.
type Services struct {
	App      *room.App
	API      *httpapi.Handler
	Gateway  *gateway.WebSocketHandler
	Conns    *gateway.ConnectionManager
	Relay    *outbox.Listener
	Consumer *gateway.EventConsumer

	closers []func() error
}

// Close tears down connections opened during setup.
func (s *Services) Close() {
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			log.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}
}

func setupServices(ctx context.Context, config *Config, pool *pgxpool.Pool, database *sql.DB) (*Services, error) {
	// Wire up dependency injection chain:
	// store -> app -> transports (HTTP API + websocket gateway).
	services := &Services{}

	repo, err := setupStore(ctx, config, pool, services)
	if err != nil {
		return nil, err
	}

	provider, err := content.NewFileProvider(config.Content.DecksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load decks from %s: %w", config.Content.DecksDir, err)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	clock := clockwork.NewRealClock()
	app := room.NewApp(repo, provider, clock)
	auth := httpapi.NewAuthenticator([]byte(secret), clock)

	conns := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), app)

	services.App = app
	services.API = httpapi.NewHandler(app, auth)
	services.Gateway = gateway.NewWebSocketHandler(conns)
	services.Conns = conns

	if err := setupEventPipeline(config, database, conns, services); err != nil {
		services.Close()
		return nil, err
	}
	return services, nil
}

func setupStore(ctx context.Context, config *Config, pool *pgxpool.Pool, services *Services) (room.Repository, error) {
	switch config.Storage.Driver {
	case "postgres":
		store := postgres.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		return store, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		services.closers = append(services.closers, rdb.Close)
		return redisstore.NewStore(rdb), nil

	case "memory":
		log.Warn().Msg("using in-memory store; rooms are lost on restart")
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", config.Storage.Driver)
	}
}

// setupEventPipeline wires the outbox relay and the gateway's stream consumer.
// The relay requires Postgres (LISTEN/NOTIFY); the consumer requires JetStream.
func setupEventPipeline(config *Config, database *sql.DB, conns *gateway.ConnectionManager, services *Services) error {
	var publisher outbox.Publisher = outbox.LogPublisher{}

	if config.Events.Publisher == "jetstream" {
		jsCfg := outbox.DefaultJetStreamConfig()
		if config.Events.NATSURL != "" {
			jsCfg.URL = config.Events.NATSURL
		}
		js, err := outbox.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to JetStream: %w", err)
		}
		services.closers = append(services.closers, js.Close)
		publisher = js

		consumerCfg := gateway.DefaultJetStreamConsumerConfig()
		consumerCfg.URL = jsCfg.URL
		consumer, err := gateway.NewEventConsumer(conns, consumerCfg)
		if err != nil {
			return fmt.Errorf("failed to create event consumer: %w", err)
		}
		services.closers = append(services.closers, consumer.Close)
		services.Consumer = consumer
	}

	if config.Storage.Driver == "postgres" {
		relayCfg := outbox.DefaultListenerConfig()
		relayCfg.DatabaseURL = databaseDSN()
		relay, err := outbox.NewListener(database, publisher, relayCfg)
		if err != nil {
			return fmt.Errorf("failed to create outbox relay: %w", err)
		}
		services.closers = append(services.closers, relay.Stop)
		services.Relay = relay
	} else if config.Events.Publisher == "jetstream" {
		log.Warn().Msg("jetstream publisher configured without postgres; no outbox relay will run")
	}

	return nil
}
