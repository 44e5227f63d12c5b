package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/catalog"
	"github.com/thothlabs/coursegen/internal/extract"
	"github.com/thothlabs/coursegen/internal/llm"
	"github.com/thothlabs/coursegen/internal/metrics"
	"github.com/thothlabs/coursegen/internal/pipeline"
)

// UnitContentInput is the input for authoring one content unit. The
// workflow launches one of these per unit, concurrently.
type UnitContentInput struct {
	Unit           pipeline.ContentUnit `json:"unit"`
	CourseTitle    string               `json:"course_title"`
	CourseContext  string               `json:"course_context"`
	Expertise      string               `json:"expertise"`
	InteractiveMin int                  `json:"interactive_min"`
	InteractiveMax int                  `json:"interactive_max"`
}

// UnitContentResult is the populated unit.
type UnitContentResult struct {
	Unit       pipeline.ContentUnit `json:"unit"`
	TokensUsed int                  `json:"tokens_used"`
}

// GenerateUnitContent runs the per-unit authoring chain: modality
// classification, an optional specialization call (code or math), the
// general authoring call for the body, and a bounded set of
// check-for-understanding elements. A failure anywhere surfaces as an
// error; the workflow converts it into a placeholder unit so sibling
// units are unaffected.
func (a *Activities) GenerateUnitContent(ctx context.Context, in UnitContentInput) (_ UnitContentResult, err error) {
	start := time.Now()
	defer func() { observeStage("content_unit", start, err) }()

	unit := in.Unit
	tokens := 0

	modality, language, used, err := a.classifyModality(ctx, in)
	if err != nil {
		return UnitContentResult{}, err
	}
	tokens += used
	unit.ContentType = modality

	switch modality {
	case pipeline.ContentCode, pipeline.ContentMixed:
		if language == "" {
			language, used, err = a.detectLanguage(ctx, in)
			if err != nil {
				return UnitContentResult{}, err
			}
			tokens += used
		}
		examples, used, err := a.synthesizeCode(ctx, in, language)
		if err != nil {
			return UnitContentResult{}, err
		}
		tokens += used
		unit.CodeExamples = examples
	case pipeline.ContentLatex:
		blocks, used, err := a.synthesizeMath(ctx, in)
		if err != nil {
			return UnitContentResult{}, err
		}
		tokens += used
		unit.MathContent = blocks
	}

	body, used, err := a.authorBody(ctx, in, unit)
	if err != nil {
		return UnitContentResult{}, err
	}
	tokens += used
	unit.Body = body

	elements, used, err := a.generateInteractive(ctx, in, unit)
	if err != nil {
		return UnitContentResult{}, err
	}
	tokens += used
	unit.InteractiveElements = elements

	unit.Generated = true
	unit.GenerationError = ""
	metrics.UnitsGenerated.WithLabelValues("success", string(unit.ContentType)).Inc()

	a.logger.Info("Unit authored",
		zap.String("course", in.CourseTitle),
		zap.Int("order", unit.Order),
		zap.String("content_type", string(unit.ContentType)),
		zap.Int("interactive", len(unit.InteractiveElements)),
		zap.Int("tokens", tokens),
	)

	return UnitContentResult{Unit: unit, TokensUsed: tokens}, nil
}

// classifyModality decides whether the unit is plain text, math-heavy,
// or code-heavy. The classifier may volunteer a language for code
// units, which saves the separate detection call.
func (a *Activities) classifyModality(ctx context.Context, in UnitContentInput) (pipeline.ContentType, string, int, error) {
	prompt := fmt.Sprintf(`Classify the dominant content modality for a course unit.
Course: %s
Unit: %s
Unit summary: %s

Respond with JSON only: {"content_type": "MARKDOWN|LATEX|CODE|MIXED", "language": "programming language if CODE or MIXED, else empty"}`,
		in.CourseTitle, in.Unit.Title, in.Unit.Body)

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: prompt, Temperature: 0.2, MaxTokens: 200})
	if err != nil {
		return "", "", 0, fmt.Errorf("classify unit %d: %w", in.Unit.Order, err)
	}

	var out struct {
		ContentType string `json:"content_type"`
		Language    string `json:"language"`
	}
	if !extract.Decode(completion.Text, &out) {
		return "", "", 0, unusable(fmt.Sprintf("classify unit %d", in.Unit.Order), fmt.Errorf("unparseable classification"))
	}

	ct := pipeline.ContentType(strings.ToUpper(strings.TrimSpace(out.ContentType)))
	if !pipeline.ValidContentType(ct) {
		// Fall back to the skeleton's guess rather than failing the unit.
		ct = in.Unit.ContentType
		if !pipeline.ValidContentType(ct) {
			ct = pipeline.ContentMarkdown
		}
	}
	return ct, strings.ToLower(strings.TrimSpace(out.Language)), completion.TokensUsed, nil
}

func (a *Activities) detectLanguage(ctx context.Context, in UnitContentInput) (string, int, error) {
	prompt := fmt.Sprintf(`Which programming language best fits this course unit?
Course: %s
Unit: %s
Summary: %s

Respond with JSON only: {"language": "..."}`,
		in.CourseTitle, in.Unit.Title, in.Unit.Body)

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: prompt, Temperature: 0.2, MaxTokens: 100})
	if err != nil {
		return "", 0, fmt.Errorf("detect language for unit %d: %w", in.Unit.Order, err)
	}
	var out struct {
		Language string `json:"language"`
	}
	if !extract.Decode(completion.Text, &out) || strings.TrimSpace(out.Language) == "" {
		// A missing language is not fatal: synthesize without catalog context.
		return "", completion.TokensUsed, nil
	}
	return strings.ToLower(strings.TrimSpace(out.Language)), completion.TokensUsed, nil
}

// synthesizeCode produces worked code examples, seeding the prompt
// with the curated reference repository descriptors for the language.
func (a *Activities) synthesizeCode(ctx context.Context, in UnitContentInput, language string) ([]pipeline.CodeExample, int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write 1-3 worked code examples for a course unit.\nCourse: %s\nUnit: %s\nSummary: %s\nLearner level: %s\n",
		in.CourseTitle, in.Unit.Title, in.Unit.Body, in.Expertise)
	if language != "" {
		fmt.Fprintf(&b, "Language: %s\n", language)
		if refs := catalog.PromptContext(language, 4); refs != "" {
			b.WriteString("\nWell-regarded reference projects in this language (style and idiom guidance only):\n")
			b.WriteString(refs)
		}
	}
	b.WriteString(`
Respond with JSON only:
{"examples": [{"language": "...", "code": "...", "explanation": "..."}]}`)

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: b.String(), Temperature: 0.4, MaxTokens: 2000})
	if err != nil {
		return nil, 0, fmt.Errorf("code synthesis for unit %d: %w", in.Unit.Order, err)
	}

	var out struct {
		Examples []pipeline.CodeExample `json:"examples"`
	}
	if !extract.Decode(completion.Text, &out) || len(out.Examples) == 0 {
		return nil, 0, unusable(fmt.Sprintf("code synthesis for unit %d", in.Unit.Order), fmt.Errorf("no examples in output"))
	}
	for i := range out.Examples {
		if out.Examples[i].Language == "" {
			out.Examples[i].Language = language
		}
	}
	return out.Examples, completion.TokensUsed, nil
}

func (a *Activities) synthesizeMath(ctx context.Context, in UnitContentInput) ([]pipeline.MathBlock, int, error) {
	prompt := fmt.Sprintf(`Write the key equations for a math-heavy course unit, as LaTeX.
Course: %s
Unit: %s
Summary: %s
Learner level: %s

Respond with JSON only: {"equations": [{"latex": "...", "explanation": "..."}]}`,
		in.CourseTitle, in.Unit.Title, in.Unit.Body, in.Expertise)

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: prompt, Temperature: 0.3, MaxTokens: 1500})
	if err != nil {
		return nil, 0, fmt.Errorf("equation synthesis for unit %d: %w", in.Unit.Order, err)
	}

	var out struct {
		Equations []pipeline.MathBlock `json:"equations"`
	}
	if !extract.Decode(completion.Text, &out) || len(out.Equations) == 0 {
		return nil, 0, unusable(fmt.Sprintf("equation synthesis for unit %d", in.Unit.Order), fmt.Errorf("no equations in output"))
	}
	return out.Equations, completion.TokensUsed, nil
}

func (a *Activities) authorBody(ctx context.Context, in UnitContentInput, unit pipeline.ContentUnit) (string, int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the full lesson body for a course unit, in markdown.\nCourse: %s\nCourse context: %s\nUnit %d: %s\nOutline: %s\nTarget duration: %d minutes\nLearner level: %s\n",
		in.CourseTitle, in.CourseContext, unit.Order, unit.Title, in.Unit.Body, unit.DurationMinutes, in.Expertise)
	if len(unit.CodeExamples) > 0 {
		b.WriteString("Weave these examples into the lesson where they fit:\n")
		for _, ex := range unit.CodeExamples {
			fmt.Fprintf(&b, "```%s\n%s\n```\n", ex.Language, ex.Code)
		}
	}
	if len(unit.MathContent) > 0 {
		b.WriteString("Incorporate these equations:\n")
		for _, m := range unit.MathContent {
			fmt.Fprintf(&b, "$$%s$$\n", m.Latex)
		}
	}
	b.WriteString("\nRespond with the lesson text only, no JSON wrapper.")

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: b.String(), Temperature: 0.7, MaxTokens: 4000})
	if err != nil {
		return "", 0, fmt.Errorf("author unit %d: %w", unit.Order, err)
	}
	body := strings.TrimSpace(completion.Text)
	if body == "" {
		return "", 0, unusable(fmt.Sprintf("author unit %d", unit.Order), fmt.Errorf("empty body"))
	}
	return body, completion.TokensUsed, nil
}

// generateInteractive produces the bounded check-for-understanding
// set. Counts outside [min, max] are clipped, not rejected.
func (a *Activities) generateInteractive(ctx context.Context, in UnitContentInput, unit pipeline.ContentUnit) ([]pipeline.InteractiveElement, int, error) {
	min, max := in.InteractiveMin, in.InteractiveMax
	if min <= 0 {
		min = 3
	}
	if max < min {
		max = min + 4
	}

	prompt := fmt.Sprintf(`Create %d-%d check-for-understanding elements for this lesson.
Unit: %s
Lesson (excerpt): %s

Respond with JSON only:
{"elements": [{"kind": "quiz|reflection|exercise", "prompt": "...", "options": ["..."], "answer": "...", "hint": "..."}]}
Use "options" and "answer" for quiz elements only.`,
		min, max, unit.Title, truncate(unit.Body, 1200))

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: prompt, Temperature: 0.5, MaxTokens: 1500})
	if err != nil {
		return nil, 0, fmt.Errorf("interactive elements for unit %d: %w", unit.Order, err)
	}

	var out struct {
		Elements []pipeline.InteractiveElement `json:"elements"`
	}
	if !extract.Decode(completion.Text, &out) || len(out.Elements) < min {
		return nil, 0, unusable(fmt.Sprintf("interactive elements for unit %d", unit.Order),
			fmt.Errorf("need at least %d elements", min))
	}
	if len(out.Elements) > max {
		out.Elements = out.Elements[:max]
	}
	return out.Elements, completion.TokensUsed, nil
}

// PlaceholderUnit builds the failure record for a unit whose authoring
// chain failed: skeleton preserved, error flagged, no interactive
// elements, so the batch tally and ordering stay intact.
func PlaceholderUnit(skeleton pipeline.ContentUnit, cause string) pipeline.ContentUnit {
	unit := skeleton
	unit.Body = fmt.Sprintf("Content generation failed for %q. This unit will be regenerated.", skeleton.Title)
	unit.Generated = false
	unit.GenerationError = cause
	unit.InteractiveElements = nil
	unit.CodeExamples = nil
	unit.MathContent = nil
	metrics.UnitsGenerated.WithLabelValues("failure", string(unit.ContentType)).Inc()
	return unit
}
