package extraction

import (
	"context"
	"fmt"

	"email_forwarder/internal/config"
	"email_forwarder/internal/oracle"
	"email_forwarder/internal/prompt"

	"github.com/rs/zerolog/log"
)

type Extractor struct {
	oracle oracle.Completer
}

func NewExtractor(o oracle.Completer) *Extractor {
	return &Extractor{oracle: o}
}

// Extract asks the oracle for the email's details and fills in missing rates
// from the configured project types.
func (e *Extractor) Extract(ctx context.Context, cfg *config.Configuration, emailText string) (*EmailDetails, error) {
	rendered, err := prompt.Fit(prompt.ExtractionPrompt{
		Template:     cfg.PromptSubjectLine,
		ProjectTypes: cfg.ProjectTypes,
	}, emailText)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction prompt: %w", err)
	}

	answer, err := e.oracle.Complete(ctx, rendered)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	details, err := ParseDetails(answer)
	if err != nil {
		return nil, err
	}
	if err := BackfillRates(cfg, details); err != nil {
		return nil, err
	}

	log.Debug().
		Str("company", details.Company).
		Str("topic", details.Topic).
		Str("project", details.ProjectName).
		Int("items", len(details.Items)).
		Msg("Extracted email details")
	return details, nil
}

// BackfillRates sets the rate of every item that names a type and a unit but no
// rate, using the type's day or hour rate.
func BackfillRates(cfg *config.Configuration, details *EmailDetails) error {
	for i := range details.Items {
		item := &details.Items[i]
		if item.Rate != nil || item.ItemType == "" || item.UnitTime == nil {
			continue
		}

		pt, ok := cfg.ProjectType(item.ItemType)
		if !ok {
			return &config.ConfigurationError{
				Field:  "project_types",
				Reason: fmt.Sprintf("no project type named %q", item.ItemType),
			}
		}

		switch *item.UnitTime {
		case UnitDay:
			rate := pt.DayRate
			item.Rate = &rate
		case UnitHour:
			rate := pt.HourRate
			item.Rate = &rate
		default:
			return &config.ConfigurationError{
				Field:  "project_types",
				Reason: fmt.Sprintf("unknown unit %q for item type %q", *item.UnitTime, item.ItemType),
			}
		}
	}
	return nil
}
