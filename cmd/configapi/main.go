// Command configapi serves the forwarder's business configuration over HTTP.
//
// Environment:
//
//	CONFIG_SOURCE    sqlite:<path> (default sqlite:email_forwarder.db)
//	CONFIG_API_PORT  listen port (default 8080)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"email_forwarder/internal/app"
	"email_forwarder/internal/config"
	"email_forwarder/internal/configapi"

	"github.com/rs/zerolog/log"
)

func main() {
	app.SetupEnvironment()

	source := app.GetEnvWithDefault("CONFIG_SOURCE", "sqlite:email_forwarder.db")
	path, ok := strings.CutPrefix(source, "sqlite:")
	if !ok {
		log.Fatal().Str("source", source).Msg("Configuration API requires a sqlite configuration source")
	}

	store, err := config.NewSQLiteStore(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	port := app.GetEnvWithDefault("CONFIG_API_PORT", "8080")
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      configapi.NewRouter(configapi.NewHandler(store)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("Configuration API starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down configuration API...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Configuration API stopped")
}
