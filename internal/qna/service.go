package qna

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/talentflow/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCandidateTree is assigned to candidates that start chatting without a tree.
const DefaultCandidateTree = "candidate.programming_language"

const persistConcurrency = 4

//go:embed trees/*.yaml
var builtinTrees embed.FS

// BuiltinTrees returns the trees shipped with the binary.
func BuiltinTrees() fs.FS {
	sub, err := fs.Sub(builtinTrees, "trees")
	if err != nil {
		panic(err)
	}
	return sub
}

// RecordAnswerInput is what a dialogue step knows about an answer.
type RecordAnswerInput struct {
	UserID          string
	TreeID          string
	QuestionID      string
	RawText         string
	NormalizedValue *string
	Attributes      map[string]any
	Confidence      float64
	Traits          []Trait
	Source          string
}

// Service walks question trees on behalf of users.
type Service struct {
	store    Store
	registry *Registry
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store Store, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		registry: NewRegistry(),
		logger:   logger.Named(log, "qna"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// LoadTreeFile registers a tree from disk and persists it best-effort.
func (s *Service) LoadTreeFile(ctx context.Context, path string) (*QuestionTree, error) {
	tree, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	s.registry.Put(tree)
	s.logger.Info("tree loaded", zap.String(logger.FieldTreeID, tree.TreeID), zap.String("source", path))

	if err := s.store.UpsertTree(ctx, tree); err != nil {
		s.logger.Warn("persisting tree failed", zap.String(logger.FieldTreeID, tree.TreeID), zap.Error(err))
	}

	return tree, nil
}

// LoadTrees validates every tree under dir (or the builtin set when dir is empty)
// and swaps them into the registry only when all of them are valid.
func (s *Service) LoadTrees(dir string) ([]*QuestionTree, error) {
	var (
		trees []*QuestionTree
		err   error
	)

	if strings.TrimSpace(dir) == "" {
		trees, err = LoadFS(BuiltinTrees(), "builtin")
	} else {
		trees, err = LoadDir(dir)
	}
	if err != nil {
		return nil, err
	}

	s.registry.Replace(trees)

	ids := make([]string, 0, len(trees))
	for _, tree := range trees {
		ids = append(ids, tree.TreeID)
	}
	s.logger.Info("trees loaded", zap.Strings("trees", ids))

	return trees, nil
}

// Reload re-reads the trees and persists them. In-flight readers keep the snapshot they hold.
func (s *Service) Reload(ctx context.Context, dir string) ([]*QuestionTree, error) {
	trees, err := s.LoadTrees(dir)
	if err != nil {
		return nil, err
	}

	if err := s.PersistTrees(ctx); err != nil {
		s.logger.Warn("persisting reloaded trees failed", zap.Error(err))
	}

	return trees, nil
}

// PersistTrees upserts every registered tree. Failures never unregister a tree.
func (s *Service) PersistTrees(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(persistConcurrency)

	for _, tree := range s.registry.List() {
		g.Go(func() error {
			if err := s.store.UpsertTree(gctx, tree); err != nil {
				return fmt.Errorf("tree %s: %w", tree.TreeID, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Register makes a tree available without persisting it.
func (s *Service) Register(tree *QuestionTree) {
	s.registry.Put(tree)
}

func (s *Service) Tree(treeID string) (*QuestionTree, bool) {
	return s.registry.Get(treeID)
}

func (s *Service) Trees() []*QuestionTree {
	return s.registry.List()
}

// NextQuestionForUser derives the user's position from their latest answer.
// It returns nil when the tree is unknown or finished.
func (s *Service) NextQuestionForUser(ctx context.Context, userID, treeID string) *Question {
	tree, ok := s.registry.Get(treeID)
	if !ok {
		s.logger.Debug("unknown tree", logger.DialogueFields(userID, treeID, "")...)
		return nil
	}

	last, err := s.store.LastAnswer(ctx, userID, treeID)
	if err != nil {
		s.logger.Warn("reading last answer failed, restarting from root",
			append(logger.DialogueFields(userID, treeID, ""), zap.Error(err))...)
		return tree.Root()
	}
	if last == nil {
		return tree.Root()
	}

	current, ok := tree.Question(last.QuestionID)
	if !ok {
		return tree.Root()
	}
	if current.EndOfTree {
		return nil
	}

	nextID, ok := current.FollowUp(last.Value())
	if !ok {
		return nil
	}

	next, _ := tree.Question(nextID)
	return next
}

// RecordAnswer writes the answer and traits. Callers treat errors as non-fatal.
func (s *Service) RecordAnswer(ctx context.Context, in RecordAnswerInput) (*AnswerRecord, error) {
	if in.UserID == "" || in.TreeID == "" || in.QuestionID == "" {
		return nil, errors.New("user id, tree id and question id are required")
	}

	source := in.Source
	if source == "" {
		source = DefaultSource
	}

	record := AnswerRecord{
		ID:              s.newID(),
		UserID:          in.UserID,
		TreeID:          in.TreeID,
		QuestionID:      in.QuestionID,
		RawText:         in.RawText,
		NormalizedValue: in.NormalizedValue,
		Attributes:      in.Attributes,
		Confidence:      in.Confidence,
		Timestamp:       s.now().UTC(),
		Source:          source,
	}

	if err := s.store.RecordAnswer(ctx, record, in.Traits); err != nil {
		return nil, err
	}

	s.logger.Debug("answer recorded",
		append(logger.DialogueFields(in.UserID, in.TreeID, in.QuestionID),
			zap.String("normalized_value", record.Value()),
			zap.Float64("confidence", record.Confidence),
			zap.Int("traits", len(in.Traits)),
		)...)

	return &record, nil
}

func (s *Service) LastAnswer(ctx context.Context, userID, treeID string) (*AnswerRecord, error) {
	return s.store.LastAnswer(ctx, userID, treeID)
}

func (s *Service) UserTraits(ctx context.Context, userID string) (map[string][]TraitRow, error) {
	return s.store.UserTraits(ctx, userID)
}

func (s *Service) AnsweredQuestionIDs(ctx context.Context, userID, treeID string) ([]string, error) {
	return s.store.AnsweredQuestionIDs(ctx, userID, treeID)
}

func (s *Service) ExplainAttribute(ctx context.Context, userID, attribute string) ([]Explanation, error) {
	return s.store.ExplainAttribute(ctx, userID, attribute)
}

func (s *Service) UpsertRequirement(ctx context.Context, edge RequiresSkillEdge) error {
	if edge.JobID == "" || edge.ConceptType == "" || edge.ConceptKey == "" {
		return errors.New("job id, concept type and concept key are required")
	}
	if edge.Attribute == "" {
		edge.Attribute = edge.ConceptType
	}
	return s.store.UpsertRequirement(ctx, edge)
}
