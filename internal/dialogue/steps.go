package dialogue

import (
	"context"
	"strings"

	"github.com/spigell/talentflow/internal/classifier"
	"github.com/spigell/talentflow/internal/logger"
	"github.com/spigell/talentflow/internal/qna"
	"go.uber.org/zap"
)

const (
	defaultConfidence = 0.4
	traitStrength     = 1.0
)

// Step is one node of the dialogue. Exactly one step runs per turn.
type Step interface {
	Name() Route
	Apply(ctx context.Context, deps Deps, state *ChatState) (Outcome, error)
}

// Outcome describes what a step did, for logging.
type Outcome struct {
	Answered  string
	Value     string
	Asked     string
	Recorded  bool
	Duplicate bool
	Ended     bool
}

type askNextQuestionStep struct{}

func NewAskNextQuestion() Step { return askNextQuestionStep{} }

func (askNextQuestionStep) Name() Route { return RouteAskNextQuestion }

func (askNextQuestionStep) Apply(ctx context.Context, deps Deps, state *ChatState) (Outcome, error) {
	next := deps.QnA.NextQuestionForUser(ctx, state.UserID, state.QnaTreeID)
	if next == nil {
		state.endQnA()
		return Outcome{Ended: true}, nil
	}

	ask(ctx, deps, state, next)
	return Outcome{Asked: next.ID}, nil
}

// ask renders q and makes it the question awaiting an answer.
func ask(ctx context.Context, deps Deps, state *ChatState, q *qna.Question) {
	state.say(deps.Phraser.Phrase(ctx, q, state))
	state.CurrentQuestionID = q.ID
	state.PendingAttribute = q.Attribute
	state.QnaMode = true
}

type processAnswerStep struct{}

func NewProcessAnswer() Step { return processAnswerStep{} }

func (processAnswerStep) Name() Route { return RouteProcessAnswer }

func (processAnswerStep) Apply(ctx context.Context, deps Deps, state *ChatState) (Outcome, error) {
	if state.CurrentQuestionID == "" {
		return Outcome{}, nil
	}

	answer, ok := state.LastUserMessage()
	if !ok {
		return Outcome{}, nil
	}

	tree, ok := deps.QnA.Tree(state.QnaTreeID)
	if !ok {
		state.QnaMode = false
		return Outcome{Ended: true}, nil
	}
	question, ok := tree.Question(state.CurrentQuestionID)
	if !ok {
		state.QnaMode = false
		return Outcome{Ended: true}, nil
	}

	fields := logger.DialogueFields(state.UserID, tree.TreeID, question.ID)

	unlock, err := deps.Locker.Lock(ctx, state.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, err
		}
		// The lock backend is down. Answers stay best-effort, so go on unsequenced.
		deps.Logger.Warn("answer lock unavailable, continuing without it", append(fields, zap.Error(err))...)
		unlock = func() {}
	}
	defer unlock()

	out := Outcome{Answered: question.ID}

	if last, err := deps.QnA.LastAnswer(ctx, state.UserID, tree.TreeID); err == nil && isDuplicate(last, question.ID, answer) {
		deps.Logger.Info("duplicate answer ignored", fields...)
		state.Metadata[MetadataDuplicate] = true
		out.Duplicate = true
		out.Value = last.Value()
	} else {
		result := interpret(ctx, deps, question, answer)
		out.Value = result.NormalizedValue
		attribute := question.TraitAttribute()

		trait := qna.Trait{
			Attribute:       attribute,
			NormalizedValue: result.NormalizedValue,
			Strength:        traitStrength,
			Confidence:      result.Confidence,
			ConceptType:     attribute,
			ConceptKey:      result.NormalizedValue,
		}

		value := result.NormalizedValue
		_, err := deps.QnA.RecordAnswer(ctx, qna.RecordAnswerInput{
			UserID:          state.UserID,
			TreeID:          tree.TreeID,
			QuestionID:      question.ID,
			RawText:         answer,
			NormalizedValue: &value,
			Attributes:      result.Attributes,
			Confidence:      result.Confidence,
			Traits:          []qna.Trait{trait},
		})
		if err != nil {
			deps.Logger.Warn("recording answer failed, continuing", append(fields, zap.Error(err))...)
		} else {
			out.Recorded = true
		}

		state.Traits[attribute] = append(state.Traits[attribute], result)
	}

	nextID, ok := question.FollowUp(out.Value)
	if !ok {
		state.endQnA()
		out.Ended = true
		return out, nil
	}
	next, ok := tree.Question(nextID)
	if !ok {
		state.endQnA()
		out.Ended = true
		return out, nil
	}

	ask(ctx, deps, state, next)
	out.Asked = next.ID
	return out, nil
}

func isDuplicate(last *qna.AnswerRecord, questionID, answer string) bool {
	return last != nil && last.QuestionID == questionID && last.RawText == answer
}

// interpret normalizes an answer according to its question type.
func interpret(ctx context.Context, deps Deps, q *qna.Question, answer string) classifier.Result {
	var result classifier.Result

	if q.Type == qna.FreeTextClassified {
		result = deps.Classifier.Classify(ctx, q, answer)
	} else {
		result = plain(answer)
	}

	if strings.TrimSpace(result.NormalizedValue) == "" {
		result.NormalizedValue = qna.UnknownValue
	}
	if result.Attributes == nil {
		result.Attributes = map[string]any{}
	}

	return result
}

func plain(answer string) classifier.Result {
	value := strings.ToLower(strings.TrimSpace(answer))
	return classifier.Result{
		NormalizedValue: value,
		Attributes:      map[string]any{"value": value},
		Confidence:      defaultConfidence,
		Source:          "raw",
	}
}

type generalChatStep struct{}

func NewGeneralChat() Step { return generalChatStep{} }

func (generalChatStep) Name() Route { return RouteGeneral }

func (generalChatStep) Apply(ctx context.Context, deps Deps, state *ChatState) (Outcome, error) {
	reply := missingContextReply
	if deps.Responder != nil {
		text, err := deps.Responder.Respond(ctx, state)
		if err != nil {
			deps.Logger.Warn("general reply failed", zap.String(logger.FieldUserID, state.UserID), zap.Error(err))
		} else {
			reply = text
		}
	}

	state.say(reply)
	state.endQnA()
	return Outcome{Ended: true}, nil
}

type calendarStep struct{}

func NewCalendarStub() Step { return calendarStep{} }

func (calendarStep) Name() Route { return RouteCalendar }

func (calendarStep) Apply(_ context.Context, _ Deps, state *ChatState) (Outcome, error) {
	state.Metadata[MetadataCalendarIntent] = true
	state.say(calendarReply)
	return Outcome{}, nil
}
