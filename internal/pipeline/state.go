package pipeline

import (
	"time"
)

// Stage identifies one step of the generation pipeline.
type Stage string

const (
	StageResearch     Stage = "RESEARCH"
	StageStructure    Stage = "STRUCTURE"
	StageContent      Stage = "CONTENT"
	StageQualityCheck Stage = "QUALITY_CHECK"
	StageRefine       Stage = "REFINE"
	StageFinish       Stage = "FINISH"
	StageError        Stage = "ERROR"
)

// ContentType describes the dominant modality of a unit body.
type ContentType string

const (
	ContentMarkdown ContentType = "MARKDOWN"
	ContentLatex    ContentType = "LATEX"
	ContentCode     ContentType = "CODE"
	ContentMixed    ContentType = "MIXED"
)

// ValidContentType reports whether ct is one of the four known modalities.
func ValidContentType(ct ContentType) bool {
	switch ct {
	case ContentMarkdown, ContentLatex, ContentCode, ContentMixed:
		return true
	}
	return false
}

// CodeExample is a runnable snippet attached to a code-heavy unit.
type CodeExample struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Explanation string `json:"explanation,omitempty"`
}

// MathBlock is a rendered-equation payload attached to a math-heavy unit.
type MathBlock struct {
	Latex       string `json:"latex"`
	Explanation string `json:"explanation,omitempty"`
}

// InteractiveElement is one check-for-understanding exercise for a unit.
type InteractiveElement struct {
	Kind    string   `json:"kind"` // quiz, reflection, exercise
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Answer  string   `json:"answer,omitempty"`
	Hint    string   `json:"hint,omitempty"`
}

// ContentUnit is one addressable course module.
type ContentUnit struct {
	Title               string               `json:"title"`
	Body                string               `json:"body"`
	Order               int                  `json:"order"`
	DurationMinutes     int                  `json:"duration_minutes"`
	ContentType         ContentType          `json:"content_type"`
	CodeExamples        []CodeExample        `json:"code_examples,omitempty"`
	MathContent         []MathBlock          `json:"math_content,omitempty"`
	InteractiveElements []InteractiveElement `json:"interactive_elements,omitempty"`
	Generated           bool                 `json:"generated"`
	GenerationError     string               `json:"generation_error,omitempty"`
	QualityScore        *float64             `json:"quality_score,omitempty"`
	RevisionHistory     []string             `json:"revision_history,omitempty"`
}

// MarketResearch is the Research stage output.
type MarketResearch struct {
	Trends           []string `json:"trends"`
	DemandIndicators []string `json:"demand_indicators"`
	TargetAudience   string   `json:"target_audience"`
	CompetitiveNotes []string `json:"competitive_notes,omitempty"`
	ViabilityScore   float64  `json:"viability_score"`
	Reasoning        string   `json:"reasoning"`
}

// CourseStructure is the Structure stage output: the course skeleton.
// The Content stage populates the same shape with generated bodies.
type CourseStructure struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	RelevanceScore  float64       `json:"relevance_score"`
	DifficultyScore float64       `json:"difficulty_score"`
	KeyTakeaways    []string      `json:"key_takeaways"`
	Prerequisites   []string      `json:"prerequisites"`
	EstimatedHours  float64       `json:"estimated_hours"`
	Units           []ContentUnit `json:"units"`
}

// UnitQuality carries the five sub-scores for one unit plus reviewer notes.
type UnitQuality struct {
	Order           int      `json:"order"`
	Depth           float64  `json:"depth"`
	PracticalValue  float64  `json:"practical_value"`
	Clarity         float64  `json:"clarity"`
	Engagement      float64  `json:"engagement"`
	MarketAlignment float64  `json:"market_alignment"`
	Average         float64  `json:"average"`
	Suggestions     []string `json:"suggestions,omitempty"`
	CriticalIssues  []string `json:"critical_issues,omitempty"`
}

// QualityReport aggregates per-unit and course-level quality assessment.
type QualityReport struct {
	Units            []UnitQuality `json:"units"`
	AggregateAverage float64       `json:"aggregate_average"`
	OverallScore     float64       `json:"overall_score"`
	Strengths        []string      `json:"strengths,omitempty"`
	Weaknesses       []string      `json:"weaknesses,omitempty"`
	NeedsRefinement  bool          `json:"needs_refinement"`
}

// ContentMetrics is the Content stage success/failure tally.
type ContentMetrics struct {
	TotalUnits   int     `json:"total_units"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	SuccessRatio float64 `json:"success_ratio"`
}

// State is the single mutable record owned by the driver loop for the
// lifetime of one generation run. Stage handlers receive a snapshot and
// return deltas; only the driver writes here.
type State struct {
	Stage           Stage            `json:"stage"`
	RequestID       string           `json:"request_id"`
	ActorID         string           `json:"actor_id"`
	TopicHint       string           `json:"topic_hint,omitempty"`
	AnalysisContext string           `json:"analysis_context"`
	MarketResearch  *MarketResearch  `json:"market_research,omitempty"`
	CourseStructure *CourseStructure `json:"course_structure,omitempty"`
	CourseContent   *CourseStructure `json:"course_content,omitempty"`
	ContentMetrics  *ContentMetrics  `json:"content_metrics,omitempty"`
	QualityReport   *QualityReport   `json:"quality_report,omitempty"`
	RetryCount      int              `json:"retry_count"`
	StepCount       int              `json:"step_count"`
	Refinements     int              `json:"refinements"`
	Messages        []string         `json:"messages"`
}

// Append records one audit-trail entry. The trail is append-only and
// ordered by stage execution, never pruned during a run.
func (s *State) Append(msg string) {
	s.Messages = append(s.Messages, msg)
}

// CourseArtifact is the caller-visible projection of a finished run.
type CourseArtifact struct {
	RequestID       string          `json:"request_id"`
	ActorID         string          `json:"actor_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	RelevanceScore  float64         `json:"relevance_score"`
	DifficultyScore float64         `json:"difficulty_score"`
	KeyTakeaways    []string        `json:"key_takeaways"`
	Prerequisites   []string        `json:"prerequisites"`
	EstimatedHours  float64         `json:"estimated_hours"`
	Units           []ContentUnit   `json:"units"`
	QualityScore    float64         `json:"quality_score"`
	ResearchInsight *MarketResearch `json:"research_insight,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ProjectArtifact builds the persisted artifact from a finished state.
// Returns nil unless the run actually produced content.
func ProjectArtifact(s *State, now time.Time) *CourseArtifact {
	if s.CourseContent == nil {
		return nil
	}
	quality := 0.0
	if s.QualityReport != nil {
		quality = s.QualityReport.AggregateAverage
	}
	cc := s.CourseContent
	return &CourseArtifact{
		RequestID:       s.RequestID,
		ActorID:         s.ActorID,
		Title:           cc.Title,
		Description:     cc.Description,
		RelevanceScore:  cc.RelevanceScore,
		DifficultyScore: cc.DifficultyScore,
		KeyTakeaways:    cc.KeyTakeaways,
		Prerequisites:   cc.Prerequisites,
		EstimatedHours:  cc.EstimatedHours,
		Units:           cc.Units,
		QualityScore:    quality,
		ResearchInsight: s.MarketResearch,
		CreatedAt:       now,
	}
}
