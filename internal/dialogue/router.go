package dialogue

import (
	"strings"

	"github.com/spigell/talentflow/internal/qna"
)

type Route string

const (
	RouteCalendar        Route = "calendar"
	RouteProcessAnswer   Route = "process_answer"
	RouteAskNextQuestion Route = "ask_next_question"
	RouteGeneral         Route = "general"
)

var schedulingKeywords = []string{"schedule", "availability", "available", "book", "calendar", "meet"}

// Decide picks the single step to run for this turn and records it in metadata.
// A candidate without a tree is enrolled into the default candidate tree.
func Decide(state *ChatState) Route {
	state.ensure()

	route := decide(state)
	state.Metadata[MetadataRouteDecision] = string(route)
	return route
}

func decide(state *ChatState) Route {
	text, _ := state.LastUserMessage()
	text = strings.ToLower(text)

	for _, keyword := range schedulingKeywords {
		if strings.Contains(text, keyword) {
			return RouteCalendar
		}
	}

	if state.QnaMode {
		if state.CurrentQuestionID != "" {
			return RouteProcessAnswer
		}
		return RouteAskNextQuestion
	}

	if state.UserType == UserTypeCandidate && state.QnaTreeID == "" {
		state.QnaTreeID = qna.DefaultCandidateTree
		state.QnaMode = true
		return RouteAskNextQuestion
	}

	return RouteGeneral
}
