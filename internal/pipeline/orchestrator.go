// Package pipeline runs the poll cycle: fetch unseen mail, classify it, record
// ledger items and forward each email to its department.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"email_forwarder/internal/archive"
	"email_forwarder/internal/config"
	"email_forwarder/internal/extraction"
	"email_forwarder/internal/forward"
	"email_forwarder/internal/gauth"
	"email_forwarder/internal/ledger"
	"email_forwarder/internal/mailbox"
	"email_forwarder/internal/matching"
	"email_forwarder/internal/message"
	"email_forwarder/internal/oracle"
	"email_forwarder/internal/prompt"
	"email_forwarder/internal/retry"
	"email_forwarder/internal/routing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Notifier is told about appended ledger rows and failed emails.
type Notifier interface {
	NotifyLedgerRows(ctx context.Context, project string, rows []ledger.WrittenRow)
	NotifyFailure(ctx context.Context, subject string, cause error)
}

// OracleFactory builds the completer for a cycle's configuration, retrying
// calls under policy.
type OracleFactory func(ctx context.Context, cfg *config.Configuration, policy retry.Config) (oracle.Completer, error)

type Dependencies struct {
	Config    config.Store
	Mailbox   mailbox.Store
	Oracle    OracleFactory
	Ledger    ledger.Store
	Archive   archive.Store
	Transport forward.Transport
	// Notifier is optional.
	Notifier   Notifier
	Resilience config.ResilienceConfig
}

type Orchestrator struct {
	config    config.Store
	mailbox   mailbox.Store
	oracle    OracleFactory
	policy    retry.Config
	writer    *ledger.Writer
	linker    *ledger.Linker
	archiver  *archive.Writer
	forwarder *forward.Forwarder
	notifier  Notifier
	now       func() time.Time
}

func New(deps Dependencies) *Orchestrator {
	o := &Orchestrator{
		config:    deps.Config,
		mailbox:   deps.Mailbox,
		oracle:    deps.Oracle,
		policy:    deps.Resilience.Oracle,
		writer:    ledger.NewWriter(deps.Ledger),
		linker:    ledger.NewLinker(deps.Ledger),
		forwarder: forward.NewForwarder(deps.Transport, deps.Resilience.Mail),
		notifier:  deps.Notifier,
		now:       time.Now,
	}
	if deps.Archive != nil {
		o.archiver = archive.NewWriter(deps.Archive)
	}
	return o
}

// Outcome describes what happened to one email.
type Outcome struct {
	Topic       string
	Project     string
	Rows        []ledger.WrittenRow
	ArchiveLink string
	Forwarded   bool
}

// Run calls RunCycle, then sleeps for interval, until ctx is cancelled. A
// slow cycle never shortens the pause before the next one.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	log.Info().Dur("interval", interval).Msg("Starting email forwarder")

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if err := o.RunCycle(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Poll cycle failed")
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			log.Info().Msg("Email forwarder stopped")
			return nil
		case <-timer.C:
		}
	}
}

// components are the oracle-backed steps, rebuilt each cycle from the
// configuration's oracle credentials.
type components struct {
	extractor *extraction.Extractor
	router    *routing.Router
	matcher   *matching.Matcher
}

// RunCycle processes every unseen email once. A missing or invalid
// configuration skips the cycle without error.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	cfg, err := o.config.Get(ctx)
	if errors.Is(err, config.ErrNotFound) {
		log.Warn().Msg("Configuration not set, skipping cycle")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := prompt.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("Invalid configuration, skipping cycle")
		return nil
	}

	completer, err := o.oracle(ctx, cfg, o.policy)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create oracle client, skipping cycle")
		return nil
	}
	steps := components{
		extractor: extraction.NewExtractor(completer),
		router:    routing.NewRouter(completer),
		matcher:   matching.NewMatcher(completer),
	}

	session, err := o.mailbox.Connect(ctx, mailbox.Credentials{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		Username: cfg.Email,
		Password: cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to open mailbox: %w", err)
	}
	defer func() {
		if err := session.Logout(); err != nil {
			log.Debug().Err(err).Msg("Mailbox logout failed")
		}
	}()

	ids, err := session.ListUnseen(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unseen messages: %w", err)
	}
	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Msg("Found unseen emails")
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger := log.With().Str("email_id", uuid.NewString()).Uint32("uid", id).Logger()
		emailCtx := logger.WithContext(ctx)

		raw, err := session.Fetch(emailCtx, id)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to fetch email")
			o.notifyFailure(ctx, fmt.Sprintf("uid %d", id), err)
			continue
		}
		o.handle(emailCtx, cfg, steps, raw)
	}
	return nil
}

func (o *Orchestrator) handle(ctx context.Context, cfg *config.Configuration, steps components, raw []byte) {
	logger := zerolog.Ctx(ctx)

	email, err := message.Normalize(raw)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to parse email")
		o.notifyFailure(ctx, "", err)
		return
	}

	outcome, err := o.process(ctx, cfg, steps, email)
	if err != nil {
		if isSkippable(err) {
			logger.Warn().Err(err).Str("subject", email.Subject).Msg("Skipping email")
		} else {
			logger.Error().Err(err).Str("subject", email.Subject).Msg("Failed to process email")
			o.notifyFailure(ctx, email.Subject, err)
		}
		return
	}

	logger.Info().
		Str("subject", email.Subject).
		Str("topic", outcome.Topic).
		Str("project", outcome.Project).
		Int("rows", len(outcome.Rows)).
		Msg("Processed email")
}

// isSkippable reports errors that only mean this email cannot be handled
// automatically.
func isSkippable(err error) bool {
	var malformed *extraction.MalformedExtractionError
	var unknown *routing.UnknownTopicError
	var cfgErr *config.ConfigurationError
	return errors.As(err, &malformed) || errors.As(err, &unknown) || errors.As(err, &cfgErr)
}

// process runs one email through extraction, routing, the ledger steps and
// forwarding.
func (o *Orchestrator) process(ctx context.Context, cfg *config.Configuration, steps components, email *message.Email) (Outcome, error) {
	var outcome Outcome

	details, err := steps.extractor.Extract(ctx, cfg, email.Text)
	if err != nil {
		return outcome, err
	}

	route, err := steps.router.Route(ctx, cfg, email.Text)
	if err != nil {
		return outcome, err
	}
	outcome.Topic = route.Topic

	if routing.IsLedgerTopic(route.Topic) {
		if err := o.record(ctx, cfg, steps, email, details, &outcome); err != nil {
			if !ledgerSkippable(err) {
				return outcome, err
			}
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Ledger steps skipped")
		}
	}

	if err := o.forwarder.Forward(ctx, cfg, email, route, details); err != nil {
		return outcome, err
	}
	outcome.Forwarded = true
	return outcome, nil
}

// ledgerSkippable reports errors after which the email is still forwarded.
func ledgerSkippable(err error) bool {
	var cfgErr *config.ConfigurationError
	var permErr *gauth.PermissionError
	return errors.As(err, &cfgErr) || errors.As(err, &permErr)
}

// record matches the project, appends the items, archives the email and links
// the archive into the new rows.
func (o *Orchestrator) record(ctx context.Context, cfg *config.Configuration, steps components, email *message.Email, details *extraction.EmailDetails, outcome *Outcome) error {
	logger := zerolog.Ctx(ctx)

	matched, err := steps.matcher.Match(ctx, cfg, email.Text, details.Plot())
	if err != nil {
		return err
	}
	project := cfg.MiscProject()
	if matched != nil {
		project = *matched
	}
	outcome.Project = project.Name

	rows, err := o.writer.WriteItems(ctx, project, details.Items)
	outcome.Rows = rows
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if o.notifier != nil {
		o.notifier.NotifyLedgerRows(ctx, project.Name, rows)
	}

	if o.archiver == nil {
		return nil
	}
	link, err := o.archiver.Archive(ctx, cfg.ArchiveFolderID, project, email, rows[0].Row.Ref, o.now())
	if err != nil {
		return fmt.Errorf("failed to archive email: %w", err)
	}
	outcome.ArchiveLink = link

	for _, linkErr := range o.linker.Link(ctx, rows, link) {
		var notFound *ledger.ItemNotFoundError
		if errors.As(linkErr, &notFound) {
			logger.Warn().Err(linkErr).Msg("Ledger row not found for linking")
			continue
		}
		logger.Error().Err(linkErr).Msg("Failed to link ledger row")
	}
	return nil
}

func (o *Orchestrator) notifyFailure(ctx context.Context, subject string, cause error) {
	if o.notifier != nil {
		o.notifier.NotifyFailure(ctx, subject, cause)
	}
}
