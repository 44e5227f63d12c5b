// Package server exposes the course generation API over HTTP. It is a
// thin shim: requests become Temporal workflow executions, responses
// are workflow results. No pipeline logic lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/metrics"
	"github.com/thothlabs/coursegen/internal/workflows"
)

// Server handles the caller-facing course API.
type Server struct {
	temporal  client.Client
	taskQueue string
	logger    *zap.Logger
}

// New wires the API server.
func New(tc client.Client, taskQueue string, logger *zap.Logger) *Server {
	return &Server{temporal: tc, taskQueue: taskQueue, logger: logger}
}

// RegisterRoutes attaches the API handlers.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/courses", s.handleCourses)
	mux.HandleFunc("/v1/courses/", s.handleCourseByID)
	mux.HandleFunc("/healthz", s.handleHealth)
}

// CreateCourseRequest is the generation request body.
type CreateCourseRequest struct {
	ActorID         string `json:"actor_id"`
	AnalysisContext string `json:"analysis_context"`
	TopicHint       string `json:"topic_hint,omitempty"`
	// Wait controls whether the call blocks for the finished artifact
	// (default) or returns 202 with the run id immediately.
	Wait *bool `json:"wait,omitempty"`
}

// ErrorResponse is the typed failure body.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// handleCourses: POST /v1/courses
func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.ActorID == "" || req.AnalysisContext == "" {
		writeError(w, http.StatusBadRequest, "actor_id and analysis_context are required", "")
		return
	}

	requestID := uuid.New().String()
	workflowID := "coursegen-" + requestID

	metrics.RunsStarted.Inc()
	run, err := s.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.taskQueue,
	}, workflows.CourseGenerationWorkflowName, workflows.GenerationInput{
		RequestID:       requestID,
		ActorID:         req.ActorID,
		AnalysisContext: req.AnalysisContext,
		TopicHint:       req.TopicHint,
	})
	if err != nil {
		s.logger.Error("Failed to start generation workflow",
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to start generation", "")
		return
	}

	if req.Wait != nil && !*req.Wait {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"workflow_id": run.GetID(),
			"run_id":      run.GetRunID(),
		})
		return
	}

	var result workflows.GenerationResult
	if err := run.Get(r.Context(), &result); err != nil {
		s.respondWorkflowError(w, workflowID, err)
		return
	}
	s.recordCompletion(&result)
	writeJSON(w, http.StatusOK, result)
}

// handleCourseByID: GET /v1/courses/{workflowID} returns run status,
// and the result once the run has completed.
func (s *Server) handleCourseByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	workflowID := strings.TrimPrefix(r.URL.Path, "/v1/courses/")
	if workflowID == "" || strings.Contains(workflowID, "/") {
		writeError(w, http.StatusBadRequest, "workflow id required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	desc, err := s.temporal.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown run %q", workflowID), "")
		return
	}

	status := desc.GetWorkflowExecutionInfo().GetStatus()
	if status == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
		writeJSON(w, http.StatusOK, map[string]any{
			"workflow_id": workflowID,
			"status":      "running",
		})
		return
	}

	var result workflows.GenerationResult
	if err := s.temporal.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
		s.respondWorkflowError(w, workflowID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondWorkflowError maps the pipeline's fatal error taxonomy onto
// HTTP statuses. The caller never receives a partial artifact.
func (s *Server) respondWorkflowError(w http.ResponseWriter, workflowID string, err error) {
	kind := ""
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		kind = appErr.Type()
	}
	metrics.RunsCompleted.WithLabelValues("error").Inc()
	s.logger.Warn("Generation run failed",
		zap.String("workflow_id", workflowID),
		zap.String("kind", kind),
		zap.Error(err),
	)

	status := http.StatusInternalServerError
	switch kind {
	case workflows.ErrTypeStepBudgetExceeded, workflows.ErrTypeMaxRetriesExceeded:
		status = http.StatusUnprocessableEntity
	case workflows.ErrTypePipelineFailed:
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error(), kind)
}

func (s *Server) recordCompletion(result *workflows.GenerationResult) {
	metrics.RunsCompleted.WithLabelValues("success").Inc()
	metrics.RunSteps.Observe(float64(result.Steps))
	metrics.QualityScores.Observe(result.QualityScore)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}
