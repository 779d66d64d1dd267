// Package matching finds the configured project an email belongs to.
package matching

import (
	"context"
	"fmt"
	"strings"

	"email_forwarder/internal/config"
	"email_forwarder/internal/oracle"
	"email_forwarder/internal/prompt"

	"github.com/rs/zerolog/log"
)

// minContactHits is how many of a project's linked contacts must appear in an
// email before it is matched on contacts alone.
const minContactHits = 2

// CheckIfPlotMatches reports whether plot belongs to a project with the given
// range. An email without a plot matches any project; an email with a plot
// never matches a project without a range.
func CheckIfPlotMatches(plot *int, r *config.PlotRange) bool {
	if plot == nil {
		return true
	}
	if r == nil {
		return false
	}
	return r.Contains(*plot)
}

// MatchProject picks a project by name first and by linked contacts second.
// It returns nil when neither finds one.
func MatchProject(projects []config.Project, answer string, plot *int, emailText string) *config.Project {
	name := strings.TrimSpace(answer)
	for i := range projects {
		p := &projects[i]
		if p.Name == name && CheckIfPlotMatches(plot, p.PlotRange) {
			return p
		}
	}

	for i := range projects {
		p := &projects[i]
		if contactHits(p, emailText) >= minContactHits && CheckIfPlotMatches(plot, p.PlotRange) {
			return p
		}
	}
	return nil
}

func contactHits(p *config.Project, emailText string) int {
	hits := 0
	for _, contact := range p.Contacts() {
		if strings.Contains(emailText, contact) {
			hits++
		}
	}
	return hits
}

type Matcher struct {
	oracle oracle.Completer
}

func NewMatcher(o oracle.Completer) *Matcher {
	return &Matcher{oracle: o}
}

// Match asks the oracle which project the email is about, then applies
// MatchProject. A nil project means the caller should use the Misc fallback.
func (m *Matcher) Match(ctx context.Context, cfg *config.Configuration, emailText string, plot *int) (*config.Project, error) {
	rendered, err := prompt.Fit(prompt.ProjectPrompt{
		Template: cfg.PromptProject,
		Projects: cfg.ProjectNames(),
	}, emailText)
	if err != nil {
		return nil, fmt.Errorf("failed to build project prompt: %w", err)
	}

	answer, err := m.oracle.Complete(ctx, rendered)
	if err != nil {
		return nil, fmt.Errorf("project request failed: %w", err)
	}

	project := MatchProject(cfg.Projects, answer, plot, emailText)
	if project == nil {
		log.Debug().Str("answer", strings.TrimSpace(answer)).Msg("No project matched")
	}
	return project, nil
}
