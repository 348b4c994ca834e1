package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/talentflow/internal/ai"
	"github.com/spigell/talentflow/internal/logger"
	"github.com/spigell/talentflow/internal/qna"
	"github.com/spigell/talentflow/internal/utils"
	"go.uber.org/zap"
)

const (
	missingContextReply = "I'm missing context to answer right now."
	calendarReply       = "I noted you want to schedule something. A calendar agent will handle this soon. " +
		"For now, please share a few available times."

	phrasingInstruction = "Return one concise follow-up question."

	defaultMaxLogLength = 200
)

// Responder answers messages that are not part of a question tree.
type Responder interface {
	Respond(ctx context.Context, state *ChatState) (string, error)
}

// AIResponder is a general chat assistant backed by a language model.
type AIResponder struct {
	client ai.Client
	logger *zap.Logger
}

func NewAIResponder(client ai.Client, log *zap.Logger) *AIResponder {
	l := logger.Named(log, "responder")
	if client != nil {
		l = logger.WithAIFields(l, client.Provider(), client.Model())
	}
	return &AIResponder{client: client, logger: l}
}

func (r *AIResponder) Respond(ctx context.Context, state *ChatState) (string, error) {
	if r == nil || r.client == nil {
		return "", errors.New("no language model configured")
	}

	message, ok := state.LastUserMessage()
	if !ok || strings.TrimSpace(message) == "" {
		return "", errors.New("no user message to answer")
	}

	system := fmt.Sprintf("You are a helpful recruiting assistant talking to a %s. "+
		"Keep answers short and practical.", audience(state.UserType))
	user := fmt.Sprintf("Conversation history:\n%s\n\nReply to the last user message.", state.history(historyLimit))

	reply, err := r.client.GenerateText(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errors.New("empty reply")
	}

	r.logger.Debug("general reply generated", zap.String("reply", utils.TruncateForLog(reply, defaultMaxLogLength)))
	return reply, nil
}

func audience(userType string) string {
	if userType == UserTypeJobPoster {
		return "hiring manager"
	}
	return "job candidate"
}

// Phraser turns a question into the text shown to the user.
type Phraser struct {
	client ai.Client
	logger *zap.Logger
}

func NewPhraser(client ai.Client, log *zap.Logger) *Phraser {
	l := logger.Named(log, "phraser")
	if client != nil {
		l = logger.WithAIFields(l, client.Provider(), client.Model())
	}
	return &Phraser{client: client, logger: l}
}

// Phrase uses the generation prompt when both it and a model are available.
// Any failure returns the static text.
func (p *Phraser) Phrase(ctx context.Context, q *qna.Question, state *ChatState) string {
	if p == nil || p.client == nil || q.GenerationPrompt == "" {
		return q.Text
	}

	user := fmt.Sprintf("Conversation history:\n%s\n\n%s", state.history(historyLimit), phrasingInstruction)
	text, err := p.client.GenerateText(ctx, q.GenerationPrompt, user)
	if err != nil {
		p.logger.Warn("phrasing question failed, using static text",
			append(logger.DialogueFields(state.UserID, state.QnaTreeID, q.ID), zap.Error(err))...)
		return q.Text
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return q.Text
	}

	return text
}
