package forward

import (
	"context"
	"fmt"
	"time"

	"email_forwarder/internal/config"
	"email_forwarder/internal/extraction"
	"email_forwarder/internal/message"
	"email_forwarder/internal/retry"
	"email_forwarder/internal/routing"

	"github.com/rs/zerolog/log"
)

type Forwarder struct {
	transport Transport
	policy    retry.Config
	now       func() time.Time
}

func NewForwarder(transport Transport, policy retry.Config) *Forwarder {
	return &Forwarder{transport: transport, policy: policy, now: time.Now}
}

// Forward sends email to the routed receiver from the configured mailbox.
func (f *Forwarder) Forward(ctx context.Context, cfg *config.Configuration, email *message.Email, route routing.Route, details *extraction.EmailDetails) error {
	env := Envelope{
		From:    cfg.Email,
		To:      route.Receiver.Email,
		Subject: Subject(route.Topic, details, email.Subject),
	}

	var data []byte
	var err error
	if route.Receiver.Header != "" {
		data, err = WithBanner(email.Raw, env, route.Receiver.Header, f.now())
	} else {
		data, err = Rewrite(email.Raw, env)
	}
	if err != nil {
		return fmt.Errorf("failed to compose forwarded email: %w", err)
	}

	server := Server{Host: cfg.SMTPServer, Port: cfg.SMTPPort, Username: cfg.Email, Password: cfg.Password}
	out := Outbound{From: cfg.Email, To: []string{route.Receiver.Email}, Data: data}
	err = retry.Do(ctx, f.policy, func(ctx context.Context) error {
		return f.transport.Send(ctx, server, out)
	})
	if err != nil {
		return fmt.Errorf("failed to send to %s: %w", route.Receiver.Email, err)
	}

	log.Info().
		Str("to", route.Receiver.Email).
		Str("subject", env.Subject).
		Msg("Forwarded email")
	return nil
}
