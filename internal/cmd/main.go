package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	services, cleanup, err := bootstrap(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire services")
	}
	defer cleanup()

	if services.Conns != nil {
		go services.Conns.Start(ctx)
	}
	if services.Relay != nil {
		go func() {
			if err := services.Relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("outbox relay stopped")
			}
		}()
	}
	if services.Consumer != nil {
		go func() {
			if err := services.Consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	server := setupServer(config, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("quizroom listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

// bootstrap opens storage and wires the service graph; the returned cleanup
// closes everything in reverse order.
func bootstrap(ctx context.Context, config *Config) (*Services, func(), error) {
	var services *Services
	var err error

	if config.Storage.Driver == "postgres" {
		pool, database, dbErr := setupDatabase(ctx)
		if dbErr != nil {
			return nil, nil, dbErr
		}
		services, err = setupServices(ctx, config, pool, database)
		if err != nil {
			pool.Close()
			_ = database.Close()
			return nil, nil, err
		}
		return services, func() {
			services.Close()
			pool.Close()
			_ = database.Close()
		}, nil
	}

	services, err = setupServices(ctx, config, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return services, services.Close, nil
}
