package pipeline

// Quality gates shared by the supervisor and the stage handlers. The
// supervisor table below is the single source of truth for stage
// transitions; nothing else may move a run between stages.
const (
	// MinSuccessRatio is the fraction of units that must author
	// successfully for a content batch to be accepted.
	MinSuccessRatio = 0.7
	// QualityThreshold gates both the aggregate course score and each
	// unit's average; anything below it routes through refinement.
	QualityThreshold = 0.6
)

// Decide maps the current state to the next stage. Pure function of
// {stage, fields present, scores}: replaying the same state always
// yields the same decision.
func Decide(s *State) Stage {
	switch s.Stage {
	case StageResearch:
		if s.MarketResearch == nil {
			return StageResearch
		}
		return StageStructure

	case StageStructure:
		if s.CourseStructure == nil {
			return StageStructure
		}
		return StageContent

	case StageContent:
		if s.CourseContent == nil {
			return StageError
		}
		if s.ContentMetrics == nil || s.ContentMetrics.SuccessRatio < MinSuccessRatio {
			return StageError
		}
		return StageQualityCheck

	case StageQualityCheck:
		if s.QualityReport == nil {
			return StageQualityCheck
		}
		if s.QualityReport.AggregateAverage < QualityThreshold {
			return StageRefine
		}
		return StageFinish

	case StageRefine:
		// Refined units are always re-scored.
		return StageQualityCheck
	}
	return StageError
}
