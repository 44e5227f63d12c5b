package activities

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thothlabs/coursegen/internal/profile"
	"github.com/thothlabs/coursegen/internal/search"
)

const validResearchJSON = `{
	"trends": ["hands-on sorting visualizations"],
	"demand_indicators": ["high search volume"],
	"target_audience": "junior engineers",
	"competitive_notes": ["most courses skip complexity analysis"],
	"viability_score": 0.85,
	"reasoning": "strong demand, weak competition"
}`

func TestPerformResearch(t *testing.T) {
	d := newTestActivities(t)
	d.search.results = []search.Result{
		{URL: "https://a", Title: "Sorting demand 2026", Content: "lots", Score: 0.9},
		{URL: "https://b", Title: "Bubble Sort basics", Content: "known", Score: 0.8},
	}
	d.profiles.learner = &profile.Learner{
		ActorID:        "actor-1",
		ExpertiseLevel: "intermediate",
		KnownConcepts:  []string{"Bubble Sort"},
	}
	d.completion.script = []completionScript{{marker: "market analyst", text: validResearchJSON}}

	res, err := d.acts.PerformResearch(context.Background(), ResearchInput{
		ActorID:         "actor-1",
		TopicHint:       "sorting",
		AnalysisContext: "intro to sorting algorithms",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Research)
	assert.Equal(t, 0.85, res.Research.ViabilityScore)
	assert.Equal(t, 1, res.ResultsUsed, "known-concept result is filtered out")
	assert.Equal(t, 1, res.KnownFiltered)
	assert.Contains(t, res.Query, "sorting")

	require.Len(t, d.completion.prompts, 1)
	assert.Contains(t, d.completion.prompts[0], "Sorting demand 2026")
	assert.NotContains(t, d.completion.prompts[0], "https://b", "filtered result stays out of the prompt")
}

func TestPerformResearchFiltersKnownByContent(t *testing.T) {
	d := newTestActivities(t)
	d.search.results = []search.Result{
		{URL: "https://a", Title: "Algorithm roundup", Content: "a long refresher on bubble sort internals", Score: 0.9},
		{URL: "https://b", Title: "Heap structures", Content: "fresh ground", Score: 0.8},
	}
	d.profiles.learner = &profile.Learner{
		ActorID:        "actor-1",
		ExpertiseLevel: "intermediate",
		KnownConcepts:  []string{"Bubble Sort"},
	}
	d.completion.script = []completionScript{{marker: "market analyst", text: validResearchJSON}}

	res, err := d.acts.PerformResearch(context.Background(), ResearchInput{
		ActorID:         "actor-1",
		AnalysisContext: "intro to sorting algorithms",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ResultsUsed, "body mentioning a known concept is filtered even with a fresh title")
	assert.Equal(t, 1, res.KnownFiltered)

	require.Len(t, d.completion.prompts, 1)
	assert.NotContains(t, d.completion.prompts[0], "https://a")
	assert.Contains(t, d.completion.prompts[0], "Heap structures")
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("é", 10)
	out := truncate(s, 5)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "éé...", out)

	assert.Equal(t, "short", truncate("short", 10), "strings under the limit pass through")
}

func TestPerformResearchUnparseableOutput(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{marker: "market analyst", text: "I refuse to answer in JSON."}}

	_, err := d.acts.PerformResearch(context.Background(), ResearchInput{ActorID: "a", AnalysisContext: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnusableOutput))
}

func TestPerformResearchRejectsOutOfRangeScore(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{
		marker: "market analyst",
		text:   `{"trends": ["t"], "target_audience": "a", "reasoning": "r", "viability_score": 1.8}`,
	}}

	_, err := d.acts.PerformResearch(context.Background(), ResearchInput{ActorID: "a", AnalysisContext: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnusableOutput))
	assert.Contains(t, err.Error(), "viability_score")
}

func TestPerformResearchSearchFailurePropagates(t *testing.T) {
	d := newTestActivities(t)
	d.search.err = errors.New("backend down")

	_, err := d.acts.PerformResearch(context.Background(), ResearchInput{ActorID: "a", AnalysisContext: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestPerformResearchProfileFailureIsAbsorbed(t *testing.T) {
	d := newTestActivities(t)
	d.profiles.err = errors.New("profile store down")
	d.completion.script = []completionScript{{marker: "market analyst", text: validResearchJSON}}

	res, err := d.acts.PerformResearch(context.Background(), ResearchInput{ActorID: "a", AnalysisContext: "x"})
	require.NoError(t, err, "missing profile must not fail the stage")
	assert.NotNil(t, res.Research)
}
