// Package routing decides which department inbox an email goes to.
package routing

import (
	"context"
	"fmt"
	"strings"

	"email_forwarder/internal/config"
	"email_forwarder/internal/oracle"
	"email_forwarder/internal/prompt"
)

// Topics that are written to the project ledger before forwarding.
const (
	TopicOrder     = "order"
	TopicVariation = "variation"
)

// IsLedgerTopic reports whether emails on topic are recorded in a ledger.
func IsLedgerTopic(topic string) bool {
	topic = strings.TrimSpace(topic)
	return strings.EqualFold(topic, TopicOrder) || strings.EqualFold(topic, TopicVariation)
}

type Route struct {
	Topic    string
	Receiver config.ReceiverEmail
}

// UnknownTopicError means the oracle answered with a topic no receiver is
// configured for.
type UnknownTopicError struct {
	Topic string
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("no receiver configured for topic %q", e.Topic)
}

type Router struct {
	oracle oracle.Completer
}

func NewRouter(o oracle.Completer) *Router {
	return &Router{oracle: o}
}

// Route asks the oracle to pick one of the configured topics and returns the
// receiver with exactly that name.
func (r *Router) Route(ctx context.Context, cfg *config.Configuration, emailText string) (Route, error) {
	rendered, err := prompt.Fit(prompt.TopicPrompt{
		Template: cfg.PromptForwardEmail,
		Topics:   cfg.TopicNames(),
	}, emailText)
	if err != nil {
		return Route{}, fmt.Errorf("failed to build topic prompt: %w", err)
	}

	answer, err := r.oracle.Complete(ctx, rendered)
	if err != nil {
		return Route{}, fmt.Errorf("topic request failed: %w", err)
	}
	return Resolve(cfg, answer)
}

// Resolve maps an oracle answer onto a receiver.
func Resolve(cfg *config.Configuration, answer string) (Route, error) {
	topic := strings.TrimSpace(answer)
	receiver, ok := cfg.Receiver(topic)
	if !ok {
		return Route{}, &UnknownTopicError{Topic: topic}
	}
	return Route{Topic: topic, Receiver: receiver}, nil
}
