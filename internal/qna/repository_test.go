package qna

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spigell/talentflow/internal/graph"
	"go.uber.org/zap"
)

type recordedCall struct {
	query  string
	params map[string]any
}

type fakeGraph struct {
	calls   []recordedCall
	results map[string][]graph.Row
	err     error
}

func (f *fakeGraph) Run(_ context.Context, query string, params map[string]any) ([]graph.Row, error) {
	f.calls = append(f.calls, recordedCall{query: query, params: params})
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func (f *fakeGraph) EnsureGraph(context.Context) error { return nil }
func (f *fakeGraph) Close(context.Context) error       { return nil }
func (f *fakeGraph) Backend() string                   { return "fake" }

func TestGraphRepositoryUpsertTree(t *testing.T) {
	tree, err := Load([]byte(validTree))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	fake := &fakeGraph{}
	repo := NewGraphRepository(fake, zap.NewNop())

	if err := repo.UpsertTree(context.Background(), tree); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// 1 tree + 3 questions + 3 follow-up edges.
	if len(fake.calls) != 7 {
		t.Fatalf("expected 7 statements, got %d", len(fake.calls))
	}

	for _, call := range fake.calls {
		if strings.Contains(call.query, "CREATE") {
			t.Fatalf("tree upsert must only MERGE: %s", call.query)
		}
	}

	if fake.calls[0].params["version"] != 2 || fake.calls[0].params["root_question_id"] != "q1" {
		t.Fatalf("unexpected tree params: %v", fake.calls[0].params)
	}

	edges := map[string]bool{}
	for _, call := range fake.calls[4:] {
		edges[call.params["from_id"].(string)+">"+call.params["value"].(string)+">"+call.params["to_id"].(string)] = true
	}
	for _, want := range []string{"q1>polyglot>q2", "q1>default>q3", "q2>default>q3"} {
		if !edges[want] {
			t.Fatalf("missing NEXT edge %s in %v", want, edges)
		}
	}
}

func TestGraphRepositoryRecordAnswer(t *testing.T) {
	fake := &fakeGraph{}
	repo := NewGraphRepository(fake, zap.NewNop())

	value := "go"
	ts := time.Date(2024, 5, 1, 12, 0, 0, 5, time.UTC)
	err := repo.RecordAnswer(context.Background(), AnswerRecord{
		ID: "a1", UserID: "u1", TreeID: "t1", QuestionID: "q1", RawText: "Go!", NormalizedValue: &value,
		Attributes: map[string]any{"kind": "single_language"}, Confidence: 0.9, Timestamp: ts, Source: DefaultSource,
	}, []Trait{{Attribute: "programming_language", NormalizedValue: "go", Strength: 1, Confidence: 0.9, ConceptType: "programming_language", ConceptKey: "go"}})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(fake.calls) != 2 {
		t.Fatalf("expected answer + trait statements, got %d", len(fake.calls))
	}

	answer := fake.calls[0].params
	if answer["timestamp"] != "2024-05-01T12:00:00.000000005Z" {
		t.Fatalf("unexpected timestamp format: %v", answer["timestamp"])
	}
	if answer["attributes_json"] != `{"kind":"single_language"}` {
		t.Fatalf("unexpected attributes: %v", answer["attributes_json"])
	}

	trait := fake.calls[1]
	if !strings.Contains(trait.query, "MERGE (u)-[h:HAS_TRAIT") {
		t.Fatalf("trait edge must be merged: %s", trait.query)
	}
	if trait.params["status"] != string(ConceptCandidate) || trait.params["concept_key"] != "go" {
		t.Fatalf("unexpected trait params: %v", trait.params)
	}
}

func TestGraphRepositoryLastAnswer(t *testing.T) {
	fake := &fakeGraph{results: map[string][]graph.Row{
		lastAnswerQuery: {{
			"id": "a1", "question_id": "q1", "raw_text": "Go", "normalized_value": "go",
			"confidence": 0.9, "timestamp": "2024-05-01T12:00:00.000000000Z", "source": "qa_tree",
			"attributes_json": `{"language_name":"go"}`,
		}},
	}}
	repo := NewGraphRepository(fake, zap.NewNop())

	last, err := repo.LastAnswer(context.Background(), "u1", "t1")
	if err != nil {
		t.Fatalf("last answer: %v", err)
	}
	if last.Value() != "go" || last.QuestionID != "q1" || last.Attributes["language_name"] != "go" {
		t.Fatalf("unexpected record: %+v", last)
	}
	if !last.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %v", last.Timestamp)
	}

	empty := NewGraphRepository(&fakeGraph{}, zap.NewNop())
	if last, err := empty.LastAnswer(context.Background(), "u1", "t1"); err != nil || last != nil {
		t.Fatalf("expected nil record, got %+v, %v", last, err)
	}
}

// answerGraph keeps Answer nodes so a recorded answer can be read back.
type answerGraph struct {
	fakeGraph
	answers map[string][]graph.Row
}

func (g *answerGraph) Run(ctx context.Context, query string, params map[string]any) ([]graph.Row, error) {
	key := fmt.Sprint(params["user_id"], "/", params["tree_id"])

	switch query {
	case recordAnswerQuery:
		g.answers[key] = append(g.answers[key], graph.Row{
			"id": params["answer_id"], "question_id": params["question_id"], "raw_text": params["raw_text"],
			"normalized_value": params["normalized_value"], "confidence": params["confidence"],
			"timestamp": params["timestamp"], "source": params["source"], "attributes_json": params["attributes_json"],
		})
		return nil, nil
	case lastAnswerQuery:
		var latest graph.Row
		for _, row := range g.answers[key] {
			if latest == nil || row["timestamp"].(string) > latest["timestamp"].(string) {
				latest = row
			}
		}
		if latest == nil {
			return nil, nil
		}
		return []graph.Row{latest}, nil
	}

	return g.fakeGraph.Run(ctx, query, params)
}

func TestGraphRepositoryRecordThenLastAnswer(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	answer := func(id, questionID, value string, offset time.Duration) AnswerRecord {
		return AnswerRecord{
			ID: id, UserID: "u1", TreeID: "t1", QuestionID: questionID, RawText: value,
			NormalizedValue: &value, Confidence: 0.9, Timestamp: base.Add(offset), Source: DefaultSource,
		}
	}

	tests := []struct {
		name     string
		recorded []AnswerRecord
		treeID   string
		question string
		value    string
	}{
		{name: "single answer", recorded: []AnswerRecord{answer("a1", "q1", "python", 0)}, treeID: "t1", question: "q1", value: "python"},
		{
			name:     "latest wins",
			recorded: []AnswerRecord{answer("a2", "q2", "5+", time.Second), answer("a1", "q1", "python", 0)},
			treeID:   "t1", question: "q2", value: "5+",
		},
		{name: "other tree", recorded: []AnswerRecord{answer("a1", "q1", "python", 0)}, treeID: "t2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewGraphRepository(&answerGraph{answers: map[string][]graph.Row{}}, zap.NewNop())
			for _, a := range tt.recorded {
				if err := repo.RecordAnswer(context.Background(), a, nil); err != nil {
					t.Fatalf("record: %v", err)
				}
			}

			last, err := repo.LastAnswer(context.Background(), "u1", tt.treeID)
			if err != nil {
				t.Fatalf("last answer: %v", err)
			}
			if tt.question == "" {
				if last != nil {
					t.Fatalf("expected no answer, got %+v", last)
				}
				return
			}
			if last == nil || last.QuestionID != tt.question || last.Value() != tt.value {
				t.Fatalf("expected %s=%s, got %+v", tt.question, tt.value, last)
			}
		})
	}
}

func TestGraphRepositoryUserTraitsGroupsByAttribute(t *testing.T) {
	fake := &fakeGraph{results: map[string][]graph.Row{
		userTraitsQuery: {
			{"attribute": "programming_language", "normalized_value": "go", "strength": 1.0, "confidence": 0.9, "concept_key": "go", "concept_type": "programming_language"},
			{"attribute": "programming_language", "normalized_value": "rust", "strength": int64(1), "confidence": "0.6", "concept_key": "rust", "concept_type": "programming_language"},
			{"attribute": "work_arrangement", "normalized_value": "remote", "strength": 1.0, "confidence": 0.9, "concept_key": "remote", "concept_type": "work_arrangement"},
		},
	}}

	traits, err := NewGraphRepository(fake, zap.NewNop()).UserTraits(context.Background(), "u1")
	if err != nil {
		t.Fatalf("traits: %v", err)
	}

	if len(traits) != 2 || len(traits["programming_language"]) != 2 {
		t.Fatalf("unexpected grouping: %+v", traits)
	}
	if rust := traits["programming_language"][1]; rust.Strength != 1 || rust.Confidence != 0.6 {
		t.Fatalf("expected weak typing to coerce numbers, got %+v", rust)
	}
}

func TestGraphRepositoryWrapsErrors(t *testing.T) {
	repo := NewGraphRepository(&fakeGraph{err: errors.New("boom")}, zap.NewNop())

	if _, err := repo.LastAnswer(context.Background(), "u1", "t1"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if err := repo.UpsertRequirement(context.Background(), RequiresSkillEdge{JobID: "j"}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestGraphRepositorySharedConcepts(t *testing.T) {
	fake := &fakeGraph{results: map[string][]graph.Row{
		sharedConceptsQuery: {{"attribute": "programming_language", "weight": 2.0, "strength": 1.0, "confidence": 0.9, "concept_type": "programming_language", "concept_key": "go"}},
		answeredQuestionsQuery: {
			{"question_id": "q1"}, {"question_id": "q1"}, {"question_id": "q2"},
		},
	}}
	repo := NewGraphRepository(fake, zap.NewNop())

	matches, err := repo.SharedConcepts(context.Background(), "j1", "u1")
	if err != nil {
		t.Fatalf("shared: %v", err)
	}
	if len(matches) != 1 || matches[0].Contribution() != 1.8 {
		t.Fatalf("unexpected matches: %+v", matches)
	}

	ids, err := repo.AnsweredQuestionIDs(context.Background(), "u1", "t1")
	if err != nil || len(ids) != 2 {
		t.Fatalf("expected deduplicated ids, got %v, %v", ids, err)
	}
}
