package prompt

import (
	"fmt"
	"strings"

	"email_forwarder/internal/config"
)

// ValidateTemplates rejects configurations whose prompt templates lack a
// placeholder the pipeline relies on.
func ValidateTemplates(cfg *config.Configuration) error {
	checks := []struct {
		field    string
		template string
		required []string
	}{
		{"prompt_subject_line", cfg.PromptSubjectLine, []string{"{email_message}"}},
		{"prompt_forward_email", cfg.PromptForwardEmail, []string{"{topics}", "{email_message}"}},
		{"prompt_project", cfg.PromptProject, []string{"{projects}", "{email_message}"}},
	}

	for _, c := range checks {
		if strings.TrimSpace(c.template) == "" {
			return &config.ConfigurationError{Field: c.field, Reason: "template is empty"}
		}
		for _, placeholder := range c.required {
			if !strings.Contains(c.template, placeholder) {
				return &config.ConfigurationError{
					Field:  c.field,
					Reason: fmt.Sprintf("template is missing placeholder %s", placeholder),
				}
			}
		}
	}
	return nil
}

// Validate runs the structural checks and the template checks together.
func Validate(cfg *config.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return ValidateTemplates(cfg)
}
