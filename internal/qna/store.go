package qna

import (
	"context"
	"time"

	"github.com/spigell/talentflow/internal/scoring"
)

// Store persists trees, answers and traits. GraphRepository is the production
// implementation; MemoryStore keeps everything in process.
type Store interface {
	UpsertTree(ctx context.Context, tree *QuestionTree) error
	RecordAnswer(ctx context.Context, answer AnswerRecord, traits []Trait) error
	// LastAnswer returns nil without error when the user has not answered anything in the tree.
	LastAnswer(ctx context.Context, userID, treeID string) (*AnswerRecord, error)
	AnsweredQuestionIDs(ctx context.Context, userID, treeID string) ([]string, error)
	UserTraits(ctx context.Context, userID string) (map[string][]TraitRow, error)
	ExplainAttribute(ctx context.Context, userID, attribute string) ([]Explanation, error)
	UpsertRequirement(ctx context.Context, edge RequiresSkillEdge) error
	scoring.Source
}

// timestampLayout is fixed width so lexical order matches chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format(timestampLayout)
}

func parseTimestamp(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func groupTraits(rows []TraitRow) map[string][]TraitRow {
	grouped := make(map[string][]TraitRow)
	for _, row := range rows {
		grouped[row.Attribute] = append(grouped[row.Attribute], row)
	}
	return grouped
}
