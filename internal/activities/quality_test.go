package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thothlabs/coursegen/internal/pipeline"
)

func TestScoreUnit(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{marker: "five 0-1 dimensions", text: `{
		"depth": 0.8, "practical_value": 0.7, "clarity": 0.9,
		"engagement": 0.6, "market_alignment": 0.5,
		"suggestions": ["add exercises"],
		"critical_issues": []
	}`}}

	res, err := d.acts.ScoreUnit(context.Background(), ScoreUnitInput{
		Unit:        pipeline.ContentUnit{Title: "U", Order: 3, Body: "b"},
		CourseTitle: "C",
	})
	require.NoError(t, err)
	q := res.Quality
	assert.Equal(t, 3, q.Order)
	assert.InDelta(t, 0.7, q.Average, 1e-9, "average of the five sub-scores")
	assert.Equal(t, []string{"add exercises"}, q.Suggestions)
}

func TestScoreUnitClampsSubScores(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{marker: "five 0-1 dimensions", text: `{
		"depth": 1.5, "practical_value": -0.2, "clarity": 0.5,
		"engagement": 0.5, "market_alignment": 0.5
	}`}}

	res, err := d.acts.ScoreUnit(context.Background(), ScoreUnitInput{Unit: pipeline.ContentUnit{Order: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Quality.Depth)
	assert.Equal(t, 0.0, res.Quality.PracticalValue)
}

func TestScoreUnitUnparseable(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{marker: "five 0-1 dimensions", text: "nope"}}

	_, err := d.acts.ScoreUnit(context.Background(), ScoreUnitInput{Unit: pipeline.ContentUnit{Order: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnusableOutput))
}

func TestAssessCourse(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{marker: "Assess this course as a whole", text: `{
		"overall_score": 0.75,
		"strengths": ["good progression"],
		"weaknesses": ["thin on practice"]
	}`}}

	res, err := d.acts.AssessCourse(context.Background(), AssessCourseInput{
		Title:        "C",
		UnitTitles:   []string{"U1", "U2"},
		UnitAverages: []float64{0.8, 0.7},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.75, res.OverallScore)
	assert.Contains(t, d.completion.prompts[0], "Unit 2 (U2): 0.70")
}

func TestRefineUnit(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{marker: "Improve this course unit", text: `{"body": "a much better lesson"}`}}

	score := 0.4
	res, err := d.acts.RefineUnit(context.Background(), RefineUnitInput{
		Unit: pipeline.ContentUnit{
			Title:        "U",
			Order:        2,
			Body:         "the original body",
			QualityScore: &score,
		},
		Quality: pipeline.UnitQuality{
			Order:       2,
			Average:     0.4,
			Clarity:     0.3,
			Suggestions: []string{"shorter sentences"},
		},
		CourseTitle: "C",
	})
	require.NoError(t, err)
	u := res.Unit
	assert.Equal(t, "a much better lesson", u.Body)
	require.Len(t, u.RevisionHistory, 1)
	assert.Equal(t, "the original body", u.RevisionHistory[0], "pre-refinement body is preserved")
	require.NotNil(t, u.QualityScore)
	assert.InDelta(t, 0.5, *u.QualityScore, 1e-9, "provisional nudge pending re-score")
	assert.Contains(t, d.completion.prompts[0], "shorter sentences")
}

func TestRefineUnitBumpCapsAtOne(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{marker: "Improve this course unit", text: `{"body": "better"}`}}

	score := 0.97
	res, err := d.acts.RefineUnit(context.Background(), RefineUnitInput{
		Unit:    pipeline.ContentUnit{Order: 1, Body: "b", QualityScore: &score},
		Quality: pipeline.UnitQuality{Order: 1, Average: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, *res.Unit.QualityScore)
}

func TestRefineUnitUnusableOutput(t *testing.T) {
	d := newTestActivities(t)
	d.completion.script = []completionScript{{marker: "Improve this course unit", text: `{"body": ""}`}}

	_, err := d.acts.RefineUnit(context.Background(), RefineUnitInput{
		Unit:    pipeline.ContentUnit{Order: 1, Body: "b"},
		Quality: pipeline.UnitQuality{Order: 1},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnusableOutput))
}
