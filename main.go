package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"email_forwarder/internal/app"
	"email_forwarder/internal/config"
	"email_forwarder/internal/oracle"
	"email_forwarder/internal/pipeline"

	"github.com/rs/zerolog/log"
)

func main() {
	app.SetupEnvironment()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resilience := config.DefaultResilienceConfig
	clients := app.InitializeClients(ctx, resilience)

	deps := pipeline.Dependencies{
		Config:     clients.Config,
		Mailbox:    clients.Mailbox,
		Oracle:     oracle.New,
		Ledger:     clients.Ledger,
		Transport:  clients.Transport,
		Notifier:   clients.Notifier,
		Resilience: resilience,
	}
	if clients.Archive != nil {
		deps.Archive = clients.Archive
	}

	if err := pipeline.New(deps).Run(ctx, app.PollInterval()); err != nil {
		log.Fatal().Err(err).Msg("Email forwarder stopped with error")
	}
}
