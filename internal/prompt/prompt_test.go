package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"email_forwarder/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestFitShortPromptUnchanged(t *testing.T) {
	r := TopicPrompt{Template: "Pick one of:\n{topics}\n\nEmail:\n{email_message}", Topics: []string{"order", "general"}}

	got, err := Fit(r, "Hello there")
	require.NoError(t, err)
	assert.Equal(t, "Pick one of:\norder\ngeneral\n\nEmail:\nHello there", got)
}

func TestFitConvergesWithinBudget(t *testing.T) {
	r := ProjectPrompt{Template: "Projects: {projects}. Email: {email_message}", Projects: []string{"Riverside"}}
	message := numberedWords(10000)

	got, err := Fit(r, message)
	require.NoError(t, err)
	assert.LessOrEqual(t, WordCount(got), MaxWords)

	// opening and closing words survive
	assert.Contains(t, got, "Email: w0 w1 w2")
	assert.True(t, strings.HasSuffix(got, "w9999"))
}

func TestFitIsDeterministic(t *testing.T) {
	r := ProjectPrompt{Template: "{projects} {email_message}", Projects: []string{"A", "B"}}
	message := numberedWords(4321)

	first, err := Fit(r, message)
	require.NoError(t, err)
	second, err := Fit(r, message)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFitTemplateOverBudget(t *testing.T) {
	r := TopicPrompt{Template: numberedWords(MaxWords+1) + " {email_message}"}

	_, err := Fit(r, numberedWords(50))
	assert.True(t, errors.Is(err, ErrPromptOverBudget))
}

func TestMiddleCut(t *testing.T) {
	tests := []struct {
		name  string
		words int
		want  []string
	}{
		// n=8: k=2, start=4, end=5, positions 4..5 removed
		{name: "eight words", words: 8, want: []string{"w0", "w1", "w2", "w3", "w6", "w7"}},
		// n=4: k=1, start=2, end=2
		{name: "four words", words: 4, want: []string{"w0", "w1", "w3"}},
		// n=3: k=0, nothing to remove
		{name: "three words", words: 3, want: []string{"w0", "w1", "w2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := middleCut(strings.Fields(numberedWords(tt.words)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractionPromptRender(t *testing.T) {
	r := ExtractionPrompt{
		Template: "Types: {project_types}\nWindows: {windows_day_rate}/day {windows_hourly_rate}/h ({windows_keywords})\n{email_message}",
		ProjectTypes: []config.ProjectType{
			{Name: "Windows", DayRate: decimal.NewFromInt(120), HourRate: decimal.RequireFromString("17.5"), Keywords: "glazing, frames"},
			{Name: "Kitchen Fitting", DayRate: decimal.NewFromInt(200)},
		},
	}

	got := r.Render("body mentioning {topics}")
	assert.Equal(t, "Types: Windows, Kitchen Fitting\nWindows: 120/day 17.5/h (glazing, frames)\nbody mentioning {topics}", got)
}

func TestRenderIsSinglePass(t *testing.T) {
	r := TopicPrompt{Template: "{topics}|{email_message}", Topics: []string{"order"}}
	assert.Equal(t, "order|literal {topics}", r.Render("literal {topics}"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "kitchen_fitting", Slug("Kitchen Fitting"))
	assert.Equal(t, "windows", Slug(" Windows "))
	assert.Equal(t, "doors_frames", Slug("Doors & Frames"))
}

func TestValidateTemplates(t *testing.T) {
	valid := func() *config.Configuration {
		return &config.Configuration{
			PromptSubjectLine:  "Extract {email_message}",
			PromptForwardEmail: "{topics} {email_message}",
			PromptProject:      "{projects} {email_message}",
		}
	}

	require.NoError(t, ValidateTemplates(valid()))

	cfg := valid()
	cfg.PromptForwardEmail = "{email_message}"
	err := ValidateTemplates(cfg)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "prompt_forward_email", cfgErr.Field)

	cfg = valid()
	cfg.PromptProject = "  "
	require.ErrorAs(t, ValidateTemplates(cfg), &cfgErr)
	assert.Equal(t, "prompt_project", cfgErr.Field)
}
