// Package prompt renders the oracle prompts and keeps them within the word
// budget by cutting words out of the middle of the email text.
package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"email_forwarder/internal/config"
)

// MaxWords is the largest prompt, in whitespace-delimited words, ever sent to
// the oracle.
const MaxWords = 1500

const maxFitPasses = 64

// ErrPromptOverBudget is returned when the email text cannot be cut down far
// enough, i.e. the template alone exceeds MaxWords.
var ErrPromptOverBudget = errors.New("prompt exceeds word budget")

// Renderer substitutes an email text into a prompt template.
type Renderer interface {
	Render(emailMessage string) string
}

// ExtractionPrompt fills prompt_subject_line. Besides {email_message} and
// {project_types}, every project type contributes {<slug>_hourly_rate},
// {<slug>_day_rate} and {<slug>_keywords}.
type ExtractionPrompt struct {
	Template     string
	ProjectTypes []config.ProjectType
}

func (p ExtractionPrompt) Render(emailMessage string) string {
	names := make([]string, 0, len(p.ProjectTypes))
	pairs := []string{"{email_message}", emailMessage}
	for _, pt := range p.ProjectTypes {
		names = append(names, pt.Name)
		s := Slug(pt.Name)
		pairs = append(pairs,
			"{"+s+"_hourly_rate}", pt.HourRate.String(),
			"{"+s+"_day_rate}", pt.DayRate.String(),
			"{"+s+"_keywords}", pt.Keywords,
		)
	}
	pairs = append(pairs, "{project_types}", strings.Join(names, ", "))
	return strings.NewReplacer(pairs...).Replace(p.Template)
}

// TopicPrompt fills prompt_forward_email. Topics are listed one per line in
// configured order.
type TopicPrompt struct {
	Template string
	Topics   []string
}

func (p TopicPrompt) Render(emailMessage string) string {
	return strings.NewReplacer(
		"{topics}", strings.Join(p.Topics, "\n"),
		"{email_message}", emailMessage,
	).Replace(p.Template)
}

// ProjectPrompt fills prompt_project.
type ProjectPrompt struct {
	Template string
	Projects []string
}

func (p ProjectPrompt) Render(emailMessage string) string {
	return strings.NewReplacer(
		"{projects}", strings.Join(p.Projects, "\n"),
		"{email_message}", emailMessage,
	).Replace(p.Template)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a project type name into its placeholder prefix:
// "Kitchen Fitting" becomes "kitchen_fitting".
func Slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// Fit renders the prompt and, while it is longer than MaxWords, removes a
// quarter of the email's words from just past its middle. The result is
// deterministic for a given template and message.
func Fit(r Renderer, emailMessage string) (string, error) {
	message := emailMessage
	for pass := 0; pass < maxFitPasses; pass++ {
		rendered := r.Render(message)
		if WordCount(rendered) <= MaxWords {
			return rendered, nil
		}

		words := strings.Fields(message)
		cut := middleCut(words)
		if len(cut) == len(words) {
			return "", fmt.Errorf("%w: %d words after %d passes", ErrPromptOverBudget, WordCount(rendered), pass)
		}
		message = strings.Join(cut, " ")
	}
	return "", fmt.Errorf("%w: still too long after %d passes", ErrPromptOverBudget, maxFitPasses)
}

// middleCut drops k = n/4 words starting at zero-based position (n-k)/2+1,
// keeping the opening and the closing of the email.
func middleCut(words []string) []string {
	n := len(words)
	k := n / 4
	start := (n-k)/2 + 1
	end := start + k - 1
	if start < 1 {
		start, end = 1, k
	}
	if end > n {
		end = n
	}
	stop := end + 1
	if stop > n {
		stop = n
	}
	if start >= stop {
		return words
	}

	cut := make([]string, 0, n-(stop-start))
	cut = append(cut, words[:start]...)
	return append(cut, words[stop:]...)
}

func WordCount(s string) int {
	return len(strings.Fields(s))
}
