package matching

import (
	"context"
	"testing"

	"email_forwarder/internal/config"
	"email_forwarder/internal/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func plotRange(start, end int) *config.PlotRange {
	return &config.PlotRange{Start: intPtr(start), End: intPtr(end)}
}

func TestCheckIfPlotMatches(t *testing.T) {
	tests := []struct {
		name string
		plot *int
		r    *config.PlotRange
		want bool
	}{
		{"no plot no range", nil, nil, true},
		{"no plot with range", nil, plotRange(1, 10), true},
		{"inside", intPtr(5), plotRange(1, 10), true},
		{"lower bound", intPtr(1), plotRange(1, 10), true},
		{"upper bound", intPtr(10), plotRange(1, 10), true},
		{"outside", intPtr(15), plotRange(1, 10), false},
		{"plot without range", intPtr(5), nil, false},
		{"open ended", intPtr(500), &config.PlotRange{Start: intPtr(100)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckIfPlotMatches(tt.plot, tt.r))
		})
	}
}

func TestMatchProjectNameBeatsContacts(t *testing.T) {
	byName := config.Project{Name: "Riverside", PlotRange: plotRange(1, 20)}
	byContacts := config.Project{Name: "Hilltop", PlotRange: plotRange(1, 20), LinkedContacts: "Jane Doe, John Smith"}
	text := "From Jane Doe, cc John Smith, plot 12"

	for _, projects := range [][]config.Project{{byName, byContacts}, {byContacts, byName}} {
		got := MatchProject(projects, "Riverside\n", intPtr(12), text)
		require.NotNil(t, got)
		assert.Equal(t, "Riverside", got.Name)
	}
}

func TestMatchProjectNameRespectsPlot(t *testing.T) {
	projects := []config.Project{
		{Name: "Riverside", PlotRange: plotRange(1, 10)},
		{Name: "Riverside", PlotRange: plotRange(11, 20)},
	}

	got := MatchProject(projects, "Riverside", intPtr(15), "")
	require.NotNil(t, got)
	assert.Same(t, &projects[1], got)

	assert.Nil(t, MatchProject(projects, "Riverside", intPtr(30), ""))
}

func TestMatchProjectByContacts(t *testing.T) {
	projects := []config.Project{
		{Name: "One contact", LinkedContacts: "Jane Doe"},
		{Name: "Duplicate contact", LinkedContacts: "Jane Doe, Jane Doe, ,"},
		{Name: "Riverside", LinkedContacts: " Jane Doe ,John Smith", PlotRange: plotRange(1, 20)},
	}
	text := "Hi, Jane Doe here. John Smith asked me to send this."

	got := MatchProject(projects, "unknown", nil, text)
	require.NotNil(t, got)
	assert.Equal(t, "Riverside", got.Name)

	assert.Nil(t, MatchProject(projects, "unknown", intPtr(40), text))
	assert.Nil(t, MatchProject(projects, "unknown", nil, "Hi from jane doe and john smith"))
}

func TestMatcherMatch(t *testing.T) {
	cfg := &config.Configuration{
		PromptProject: "Projects:\n{projects}\n{email_message}",
		Projects: []config.Project{
			{Name: "Riverside", PlotRange: plotRange(1, 20)},
			{Name: "Hilltop"},
		},
	}
	var sent string
	o := oracle.CompleterFunc(func(ctx context.Context, p string) (string, error) {
		sent = p
		return " Hilltop ", nil
	})

	got, err := NewMatcher(o).Match(context.Background(), cfg, "body", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hilltop", got.Name)
	assert.Equal(t, "Projects:\nRiverside\nHilltop\nbody", sent)
}
