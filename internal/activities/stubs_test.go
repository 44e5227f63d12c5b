package activities

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/thothlabs/coursegen/internal/config"
	"github.com/thothlabs/coursegen/internal/llm"
	"github.com/thothlabs/coursegen/internal/pipeline"
	"github.com/thothlabs/coursegen/internal/profile"
	"github.com/thothlabs/coursegen/internal/search"
)

// scriptedCompletion answers each prompt with the first script entry
// whose marker appears in the prompt text.
type scriptedCompletion struct {
	script  []completionScript
	prompts []string
	err     error
}

type completionScript struct {
	marker string
	text   string
}

func (s *scriptedCompletion) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	s.prompts = append(s.prompts, req.Prompt)
	if s.err != nil {
		return llm.CompletionResult{}, s.err
	}
	for _, entry := range s.script {
		if strings.Contains(req.Prompt, entry.marker) {
			return llm.CompletionResult{Text: entry.text, TokensUsed: 10}, nil
		}
	}
	return llm.CompletionResult{Text: "", TokensUsed: 0}, nil
}

type stubSearch struct {
	results []search.Result
	queries []string
	err     error
}

func (s *stubSearch) Search(_ context.Context, query string) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubProfiles struct {
	learner *profile.Learner
	err     error
}

func (s *stubProfiles) LearnerProfile(_ context.Context, actorID string) (*profile.Learner, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.learner != nil {
		return s.learner, nil
	}
	return &profile.Learner{ActorID: actorID, ExpertiseLevel: "beginner"}, nil
}

type stubConfig struct{ cfg *config.Config }

func (s *stubConfig) Current() *config.Config {
	if s.cfg != nil {
		return s.cfg
	}
	cfg, _ := config.LoadFile("/nonexistent/engine.yaml")
	return cfg
}

type stubStore struct {
	saved *pipeline.CourseArtifact
	id    string
	err   error
}

func (s *stubStore) SaveCourse(_ context.Context, artifact *pipeline.CourseArtifact, _ *pipeline.QualityReport) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = artifact
	if s.id == "" {
		s.id = "course-1"
	}
	return s.id, nil
}

type testDeps struct {
	completion *scriptedCompletion
	search     *stubSearch
	profiles   *stubProfiles
	store      *stubStore
	acts       *Activities
}

func newTestActivities(t *testing.T) *testDeps {
	t.Helper()
	d := &testDeps{
		completion: &scriptedCompletion{},
		search:     &stubSearch{},
		profiles:   &stubProfiles{},
		store:      &stubStore{},
	}
	d.acts = NewActivities(d.completion, d.search, d.profiles, &stubConfig{}, d.store, zaptest.NewLogger(t))
	return d
}
