package qna

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type failingStore struct {
	*MemoryStore
	lastErr   error
	recordErr error
	upsertErr error
}

func (f *failingStore) LastAnswer(ctx context.Context, userID, treeID string) (*AnswerRecord, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	return f.MemoryStore.LastAnswer(ctx, userID, treeID)
}

func (f *failingStore) RecordAnswer(ctx context.Context, answer AnswerRecord, traits []Trait) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	return f.MemoryStore.RecordAnswer(ctx, answer, traits)
}

func (f *failingStore) UpsertTree(ctx context.Context, tree *QuestionTree) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.MemoryStore.UpsertTree(ctx, tree)
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()

	svc := NewService(store, zap.NewNop())
	tick := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	tree, err := Load([]byte(validTree))
	if err != nil {
		t.Fatalf("load tree: %v", err)
	}
	svc.registry.Put(tree)

	return svc
}

func ptr(s string) *string { return &s }

func TestNextQuestionForUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore())

	if q := svc.NextQuestionForUser(ctx, "u1", "missing"); q != nil {
		t.Fatalf("unknown tree must yield nil, got %v", q.ID)
	}

	if q := svc.NextQuestionForUser(ctx, "u1", "t1"); q == nil || q.ID != "q1" {
		t.Fatalf("expected root for a new user, got %v", q)
	}

	record := func(question string, value *string) {
		t.Helper()
		if _, err := svc.RecordAnswer(ctx, RecordAnswerInput{UserID: "u1", TreeID: "t1", QuestionID: question, RawText: "x", NormalizedValue: value, Confidence: 0.9}); err != nil {
			t.Fatalf("record answer: %v", err)
		}
	}

	record("q1", ptr("polyglot"))
	if q := svc.NextQuestionForUser(ctx, "u1", "t1"); q == nil || q.ID != "q2" {
		t.Fatalf("expected value-specific follow-up q2, got %v", q)
	}

	record("q1", ptr("go"))
	if q := svc.NextQuestionForUser(ctx, "u1", "t1"); q == nil || q.ID != "q3" {
		t.Fatalf("expected default follow-up q3, got %v", q)
	}

	record("q1", nil)
	if q := svc.NextQuestionForUser(ctx, "u1", "t1"); q == nil || q.ID != "q3" {
		t.Fatalf("missing normalized value should route to default, got %v", q)
	}

	record("q3", ptr("senior"))
	if q := svc.NextQuestionForUser(ctx, "u1", "t1"); q != nil {
		t.Fatalf("end of tree must yield nil, got %v", q.ID)
	}

	record("removed_question", ptr("x"))
	if q := svc.NextQuestionForUser(ctx, "u1", "t1"); q == nil || q.ID != "q1" {
		t.Fatalf("answer to an unknown question should restart at root, got %v", q)
	}
}

func TestNextQuestionWithoutDefaultEnds(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore())

	tree, _ := svc.Tree("t1")
	delete(tree.Questions["q1"].FollowUps, DefaultFollowUp)

	if _, err := svc.RecordAnswer(ctx, RecordAnswerInput{UserID: "u1", TreeID: "t1", QuestionID: "q1", NormalizedValue: ptr("rust")}); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if q := svc.NextQuestionForUser(ctx, "u1", "t1"); q != nil {
		t.Fatalf("no matching follow-up must end the tree, got %v", q.ID)
	}
}

func TestNextQuestionFallsBackToRootOnStoreError(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	store := &failingStore{MemoryStore: NewMemoryStore(), lastErr: errors.New("connection refused")}
	svc := newTestService(t, store)
	svc.logger = zap.New(core)

	q := svc.NextQuestionForUser(context.Background(), "u1", "t1")
	if q == nil || q.ID != "q1" {
		t.Fatalf("expected root on store error, got %v", q)
	}
	if observed.Len() != 1 {
		t.Fatalf("expected a warning to be logged, got %d entries", observed.Len())
	}
}

func TestRecordAnswerDefaultsAndErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(t, store)
	svc.newID = func() string { return "answer-1" }

	record, err := svc.RecordAnswer(ctx, RecordAnswerInput{UserID: "u1", TreeID: "t1", QuestionID: "q1", RawText: "Go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID != "answer-1" || record.Source != DefaultSource || record.Timestamp.IsZero() {
		t.Fatalf("unexpected record: %+v", record)
	}

	last, _ := store.LastAnswer(ctx, "u1", "t1")
	if last == nil || last.RawText != "Go" {
		t.Fatalf("expected the recorded answer to be latest, got %+v", last)
	}

	if _, err := svc.RecordAnswer(ctx, RecordAnswerInput{UserID: "u1"}); err == nil {
		t.Fatal("expected validation error")
	}

	failing := newTestService(t, &failingStore{MemoryStore: NewMemoryStore(), recordErr: persistenceError("record answer", errors.New("down"))})
	_, err = failing.RecordAnswer(ctx, RecordAnswerInput{UserID: "u1", TreeID: "t1", QuestionID: "q1"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestLoadTreesAndReload(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, zap.NewNop())

	trees, err := svc.LoadTrees("")
	if err != nil {
		t.Fatalf("builtin trees: %v", err)
	}
	if len(trees) == 0 {
		t.Fatal("expected builtin trees")
	}
	if _, ok := svc.Tree(DefaultCandidateTree); !ok {
		t.Fatal("default candidate tree not registered")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "t1.yaml"), []byte(validTree), 0o600); err != nil {
		t.Fatalf("write tree: %v", err)
	}

	if _, err := svc.Reload(ctx, dir); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := svc.Tree(DefaultCandidateTree); ok {
		t.Fatal("reload must replace the registry content")
	}
	if len(store.questions["t1"]) != 3 {
		t.Fatalf("expected reloaded tree to be persisted, got %d questions", len(store.questions["t1"]))
	}

	broken := strings.Replace(validTree, "tree_id: t1", "tree_id: t2", 1)
	broken = strings.Replace(broken, "root_question_id: q1", "root_question_id: nope", 1)
	if err := os.WriteFile(filepath.Join(dir, "t2.yaml"), []byte(broken), 0o600); err != nil {
		t.Fatalf("write tree: %v", err)
	}
	if _, err := svc.Reload(ctx, dir); err == nil {
		t.Fatal("expected invalid tree to abort reload")
	}
	if _, ok := svc.Tree("t1"); !ok {
		t.Fatal("failed reload must keep the previous registry")
	}
}

func TestLoadTreeFileRegistersDespitePersistenceFailure(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), upsertErr: errors.New("graph down")}
	svc := NewService(store, zap.NewNop())

	path := filepath.Join(t.TempDir(), "tree.yaml")
	if err := os.WriteFile(path, []byte(validTree), 0o600); err != nil {
		t.Fatalf("write tree: %v", err)
	}

	if _, err := svc.LoadTreeFile(context.Background(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := svc.Tree("t1"); !ok {
		t.Fatal("tree must stay registered when persistence fails")
	}

	if err := svc.PersistTrees(context.Background()); err == nil {
		t.Fatal("expected persistence error to be reported")
	}
}

func TestUpsertRequirementValidation(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())

	if err := svc.UpsertRequirement(context.Background(), RequiresSkillEdge{JobID: "j1"}); err == nil {
		t.Fatal("expected validation error")
	}
	if err := svc.UpsertRequirement(context.Background(), RequiresSkillEdge{JobID: "j1", ConceptType: "programming_language", ConceptKey: "go", Weight: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
