package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/pipeline"
)

// CourseStore persists the finalized artifact. The engine hands one
// finished course (plus its research insight) to this collaborator and
// performs no other storage I/O.
type CourseStore interface {
	SaveCourse(ctx context.Context, artifact *pipeline.CourseArtifact, report *pipeline.QualityReport) (string, error)
}

// PersistCourseInput is the input for the terminal persistence call.
type PersistCourseInput struct {
	Artifact *pipeline.CourseArtifact `json:"artifact"`
	Report   *pipeline.QualityReport  `json:"report"`
}

// PersistCourseResult returns the stored course id.
type PersistCourseResult struct {
	CourseID string `json:"course_id"`
}

// PersistCourse hands the finished artifact to the persistence layer.
func (a *Activities) PersistCourse(ctx context.Context, in PersistCourseInput) (_ PersistCourseResult, err error) {
	start := time.Now()
	defer func() { observeStage("persist", start, err) }()

	if in.Artifact == nil {
		return PersistCourseResult{}, fmt.Errorf("persist course: nil artifact")
	}
	id, err := a.store.SaveCourse(ctx, in.Artifact, in.Report)
	if err != nil {
		return PersistCourseResult{}, fmt.Errorf("persist course %q: %w", in.Artifact.Title, err)
	}
	a.logger.Info("Course persisted",
		zap.String("course_id", id),
		zap.String("title", in.Artifact.Title),
		zap.Int("units", len(in.Artifact.Units)),
	)
	return PersistCourseResult{CourseID: id}, nil
}

// SQLCourseStore is the Postgres-backed CourseStore.
type SQLCourseStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLCourseStore wires the store.
func NewSQLCourseStore(db *sqlx.DB, logger *zap.Logger) *SQLCourseStore {
	return &SQLCourseStore{db: db, logger: logger}
}

// SaveCourse writes the course row, its units, and the research
// insight record in one transaction.
func (s *SQLCourseStore) SaveCourse(ctx context.Context, artifact *pipeline.CourseArtifact, report *pipeline.QualityReport) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	courseID := uuid.New().String()
	takeaways, _ := json.Marshal(artifact.KeyTakeaways)
	prereqs, _ := json.Marshal(artifact.Prerequisites)
	reportJSON, _ := json.Marshal(report)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO courses (
			id, author_id, title, description,
			relevance_score, difficulty_score, estimated_hours,
			key_takeaways, prerequisites, quality_score, quality_report,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		courseID, artifact.ActorID, artifact.Title, artifact.Description,
		artifact.RelevanceScore, artifact.DifficultyScore, artifact.EstimatedHours,
		takeaways, prereqs, artifact.QualityScore, reportJSON,
		artifact.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert course: %w", err)
	}

	for _, u := range artifact.Units {
		unitJSON, err := json.Marshal(u)
		if err != nil {
			return "", fmt.Errorf("marshal unit %d: %w", u.Order, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO course_modules (
				id, course_id, title, position, duration_minutes,
				content_type, quality_score, payload
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New().String(), courseID, u.Title, u.Order, u.DurationMinutes,
			string(u.ContentType), u.QualityScore, unitJSON,
		)
		if err != nil {
			return "", fmt.Errorf("insert unit %d: %w", u.Order, err)
		}
	}

	if artifact.ResearchInsight != nil {
		insightJSON, err := json.Marshal(artifact.ResearchInsight)
		if err != nil {
			return "", fmt.Errorf("marshal research insight: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO research_insights (id, course_id, viability_score, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), courseID,
			artifact.ResearchInsight.ViabilityScore, insightJSON, time.Now().UTC(),
		)
		if err != nil {
			return "", fmt.Errorf("insert research insight: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return courseID, nil
}
