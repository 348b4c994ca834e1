package dialogue

import (
	"fmt"
	"strings"

	"github.com/spigell/talentflow/internal/classifier"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	UserTypeCandidate = "candidate"
	UserTypeJobPoster = "job_poster"

	MetadataRouteDecision  = "route_decision"
	MetadataCalendarIntent = "calendar_intent"
	MetadataDuplicate      = "duplicate_answer"

	historyLimit = 8
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatState is one turn of a conversation. Callers carry QnaMode, CurrentQuestionID
// and QnaTreeID forward between turns.
type ChatState struct {
	Messages          []Message                      `json:"messages"`
	UserID            string                         `json:"user_id"`
	UserType          string                         `json:"user_type"`
	QnaTreeID         string                         `json:"qna_tree_id,omitempty"`
	CurrentQuestionID string                         `json:"current_question_id,omitempty"`
	QnaMode           bool                           `json:"qna_mode"`
	PendingAttribute  string                         `json:"pending_attribute,omitempty"`
	Traits            map[string][]classifier.Result `json:"traits"`
	Metadata          map[string]any                 `json:"metadata"`
}

// LastUserMessage returns the most recent message sent by the user.
func (s *ChatState) LastUserMessage() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content, true
		}
	}
	return "", false
}

// LastAssistantMessage is what the caller shows to the user after a turn.
func (s *ChatState) LastAssistantMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

func (s *ChatState) say(content string) {
	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: content})
}

func (s *ChatState) endQnA() {
	s.QnaMode = false
	s.CurrentQuestionID = ""
}

// history renders the last limit messages as "role: content" lines.
func (s *ChatState) history(limit int) string {
	msgs := s.Messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func (s *ChatState) ensure() {
	if s.Traits == nil {
		s.Traits = make(map[string][]classifier.Result)
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
}
