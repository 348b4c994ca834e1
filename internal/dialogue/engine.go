// Package dialogue routes each chat turn to exactly one step of the Q&A flow.
package dialogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/talentflow/internal/classifier"
	"github.com/spigell/talentflow/internal/logger"
	"github.com/spigell/talentflow/internal/qna"
	"github.com/spigell/talentflow/internal/sequencer"
	"go.uber.org/zap"
)

// QnA is the part of qna.Service the dialogue needs.
type QnA interface {
	Tree(treeID string) (*qna.QuestionTree, bool)
	NextQuestionForUser(ctx context.Context, userID, treeID string) *qna.Question
	LastAnswer(ctx context.Context, userID, treeID string) (*qna.AnswerRecord, error)
	RecordAnswer(ctx context.Context, in qna.RecordAnswerInput) (*qna.AnswerRecord, error)
}

type AnswerClassifier interface {
	Classify(ctx context.Context, question *qna.Question, answer string) classifier.Result
}

// Deps aggregates dependencies shared across all dialogue steps.
type Deps struct {
	QnA        QnA
	Classifier AnswerClassifier
	Phraser    *Phraser
	Responder  Responder
	Locker     sequencer.Locker
	Logger     *zap.Logger
}

// Engine is the dialogue state machine.
type Engine struct {
	deps  Deps
	steps map[Route]Step
}

// New fills optional dependencies with offline defaults.
func New(deps Deps) (*Engine, error) {
	if deps.QnA == nil {
		return nil, errors.New("qna service is required")
	}

	deps.Logger = logger.Named(deps.Logger, "dialogue")
	if deps.Classifier == nil {
		deps.Classifier = classifier.New(nil, deps.Logger)
	}
	if deps.Phraser == nil {
		deps.Phraser = NewPhraser(nil, deps.Logger)
	}
	if deps.Locker == nil {
		deps.Locker = sequencer.NewLocal()
	}

	e := &Engine{deps: deps, steps: make(map[Route]Step)}
	for _, step := range []Step{NewAskNextQuestion(), NewProcessAnswer(), NewGeneralChat(), NewCalendarStub()} {
		e.steps[step.Name()] = step
	}

	return e, nil
}

// Handle runs one turn: route, then a single step. The returned state is the input, mutated.
func (e *Engine) Handle(ctx context.Context, state *ChatState) (*ChatState, error) {
	if state == nil {
		return nil, errors.New("chat state is required")
	}

	route := Decide(state)
	step, ok := e.steps[route]
	if !ok {
		step = e.steps[RouteGeneral]
	}

	out, err := step.Apply(ctx, e.deps, state)
	if err != nil {
		return state, fmt.Errorf("%s: %w", step.Name(), err)
	}

	e.deps.Logger.Info("dialogue step",
		append(logger.DialogueFields(state.UserID, state.QnaTreeID, out.Answered),
			zap.String("route", string(route)),
			zap.String("value", out.Value),
			zap.String("asked", out.Asked),
			zap.Bool("recorded", out.Recorded),
			zap.Bool("duplicate", out.Duplicate),
			zap.Bool("qna_ended", out.Ended),
		)...)

	return state, nil
}
