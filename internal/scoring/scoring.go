package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Match is one requirement/trait pair meeting at the same concept.
type Match struct {
	Attribute   string  `mapstructure:"attribute" json:"attribute"`
	Weight      float64 `mapstructure:"weight" json:"weight"`
	Strength    float64 `mapstructure:"strength" json:"strength"`
	Confidence  float64 `mapstructure:"confidence" json:"confidence"`
	ConceptType string  `mapstructure:"concept_type" json:"concept_type"`
	ConceptKey  string  `mapstructure:"concept_key" json:"concept_key"`
}

// Contribution is weight × strength × confidence.
func (m Match) Contribution() float64 {
	return m.Weight * m.Strength * m.Confidence
}

// Source finds the concepts a job requires and a user has.
type Source interface {
	SharedConcepts(ctx context.Context, jobID, userID string) ([]Match, error)
}

type AttributeScore struct {
	Attribute string  `json:"attribute"`
	Score     float64 `json:"score"`
}

type Result struct {
	JobID     string           `json:"job_id"`
	UserID    string           `json:"user_id"`
	Total     float64          `json:"total"`
	Breakdown []AttributeScore `json:"breakdown"`
}

type Engine struct {
	source Source
	logger *zap.Logger
}

func New(source Source, logger *zap.Logger) *Engine {
	return &Engine{source: source, logger: logger}
}

// Score sums contributions per requirement attribute. A pair with nothing in
// common scores zero with an empty breakdown.
func (e *Engine) Score(ctx context.Context, jobID, userID string) (*Result, error) {
	if jobID == "" || userID == "" {
		return nil, errors.New("job id and user id are required")
	}

	matches, err := e.source.SharedConcepts(ctx, jobID, userID)
	if err != nil {
		return nil, fmt.Errorf("loading shared concepts: %w", err)
	}

	result := Aggregate(matches)
	result.JobID = jobID
	result.UserID = userID

	e.logger.Debug("match scored",
		zap.String("job_id", jobID),
		zap.String("user_id", userID),
		zap.Int("shared_concepts", len(matches)),
		zap.Float64("total", result.Total),
	)

	return result, nil
}

// Aggregate groups matches by attribute; the breakdown is ordered by attribute.
func Aggregate(matches []Match) *Result {
	byAttribute := make(map[string]float64)
	for _, m := range matches {
		byAttribute[m.Attribute] += m.Contribution()
	}

	result := &Result{Breakdown: make([]AttributeScore, 0, len(byAttribute))}
	for attribute, score := range byAttribute {
		result.Breakdown = append(result.Breakdown, AttributeScore{Attribute: attribute, Score: score})
		result.Total += score
	}

	sort.Slice(result.Breakdown, func(i, j int) bool {
		return result.Breakdown[i].Attribute < result.Breakdown[j].Attribute
	})

	return result
}

// Rank scores each user against the job, best first. Users that fail to score are logged and skipped.
func (e *Engine) Rank(ctx context.Context, jobID string, userIDs []string) ([]*Result, error) {
	results := make([]*Result, 0, len(userIDs))
	for _, userID := range userIDs {
		result, err := e.Score(ctx, jobID, userID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("scoring failed", zap.String("job_id", jobID), zap.String("user_id", userID), zap.Error(err))
			continue
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Total > results[j].Total })
	return results, nil
}
