package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spigell/talentflow/internal/ai"
	"github.com/spigell/talentflow/internal/logger"
	"github.com/spigell/talentflow/internal/qna"
	"github.com/spigell/talentflow/internal/utils"
	"go.uber.org/zap"
)

const (
	StrategyInstructor = "instructor_dataclass"
	StrategyStructured = "structured"

	SourceModel     = "llm"
	SourceHeuristic = "heuristic"
	SourceFallback  = "fallback"

	confidenceResolved = 0.9
	confidenceUnknown  = 0.5
	confidenceFallback = 0.6

	defaultMaxLogLength = 200

	systemPrompt = "You classify a single answer given in a recruiting conversation. " +
		"Reply only with a JSON object matching the requested schema. Use \"unknown\" when the answer does not say."
)

// ErrClassification wraps failures of the structured extraction backend. It is only logged.
var ErrClassification = errors.New("classification failed")

// Result is a normalized interpretation of one answer.
type Result struct {
	NormalizedValue string         `json:"normalized_value"`
	Attributes      map[string]any `json:"attributes"`
	Confidence      float64        `json:"confidence"`
	Source          string         `json:"source"`
}

// Classifier picks a schema per question and fills it with a model or heuristics.
type Classifier struct {
	client ai.Client
	logger *zap.Logger

	mu         sync.RWMutex
	schemas    map[string]Schema
	strategies map[string]struct{}

	// fallback interprets answers whose strategy or schema is not registered.
	fallback Schema
}

// New returns a classifier with the builtin schemas. client may be nil.
func New(client ai.Client, log *zap.Logger) *Classifier {
	l := logger.Named(log, "classifier")
	if client != nil {
		l = logger.WithAIFields(l, client.Provider(), client.Model())
	}

	c := &Classifier{
		client:     client,
		logger:     l,
		schemas:    make(map[string]Schema),
		strategies: map[string]struct{}{StrategyInstructor: {}, StrategyStructured: {}},
		fallback:   ProgrammingLanguagePreference{},
	}
	c.Register(ProgrammingLanguagePreference{})
	c.Register(WorkArrangementPreference{})

	return c
}

// Register adds or replaces a schema by name.
func (c *Classifier) Register(schema Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[schema.Name()] = schema
}

// Outputs reports the values a schema can normalize to. It matches the signature qna.Lint expects.
func (c *Classifier) Outputs(name string) ([]string, bool) {
	schema, ok := c.schema(name)
	if !ok {
		return nil, false
	}
	return schema.Outputs(), true
}

func (c *Classifier) schema(name string) (Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	schema, ok := c.schemas[strings.TrimSpace(name)]
	return schema, ok
}

func (c *Classifier) structured(strategy string) bool {
	_, ok := c.strategies[strings.TrimSpace(strategy)]
	return ok
}

// Classify never fails: backend errors degrade to heuristics.
func (c *Classifier) Classify(ctx context.Context, question *qna.Question, answer string) Result {
	var spec qna.ClassifierSpec
	if question != nil && question.Classifier != nil {
		spec = *question.Classifier
	}

	schema, known := c.schema(spec.Schema)
	if !known || !c.structured(spec.Strategy) {
		attrs := c.fallback.Heuristic(answer)
		return Result{
			NormalizedValue: c.fallback.Normalize(attrs),
			Attributes:      attrs,
			Confidence:      confidenceFallback,
			Source:          SourceFallback,
		}
	}

	attrs, source := c.extract(ctx, schema, question, answer)
	value := schema.Normalize(attrs)

	confidence := confidenceResolved
	if value == KindUnknown {
		confidence = confidenceUnknown
	}

	return Result{
		NormalizedValue: value,
		Attributes:      attrs,
		Confidence:      confidence,
		Source:          source,
	}
}

func (c *Classifier) extract(ctx context.Context, schema Schema, question *qna.Question, answer string) (map[string]any, string) {
	if c.client == nil {
		return schema.Heuristic(answer), SourceHeuristic
	}

	attrs, err := c.generate(ctx, schema, question, answer)
	if err != nil {
		c.logger.Warn("structured extraction failed, using heuristics",
			zap.String("schema", schema.Name()),
			zap.String(logger.FieldQuestionID, question.ID),
			zap.String("answer", utils.TruncateForLog(answer, defaultMaxLogLength)),
			zap.Error(err),
		)
		return schema.Heuristic(answer), SourceHeuristic
	}

	return attrs, SourceModel
}

func (c *Classifier) generate(ctx context.Context, schema Schema, question *qna.Question, answer string) (map[string]any, error) {
	var b strings.Builder
	if question != nil && question.Text != "" {
		fmt.Fprintf(&b, "Question: %s\n", question.Text)
	}
	fmt.Fprintf(&b, "Answer: %s", answer)

	attrs, err := c.client.GenerateJSON(ctx, systemPrompt, b.String(), schema.Definition())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	if ai.CoerceString(attrs["kind"]) == "" {
		return nil, fmt.Errorf("%w: response has no kind", ErrClassification)
	}

	return attrs, nil
}
