package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spigell/talentflow/internal/dialogue"
	"github.com/spigell/talentflow/internal/qna"
	"go.uber.org/zap"
)

type ChatRequest struct {
	Message           string             `json:"message"`
	History           []dialogue.Message `json:"history"`
	QnaTreeID         string             `json:"qna_tree_id"`
	CurrentQuestionID string             `json:"current_question_id"`
	QnaMode           bool               `json:"qna_mode"`
}

type ChatResponse struct {
	Reply string              `json:"reply"`
	Route string              `json:"route"`
	State *dialogue.ChatState `json:"state"`
}

type treeView struct {
	TreeID         string `json:"tree_id"`
	UserType       string `json:"user_type"`
	Namespace      string `json:"namespace"`
	Version        int    `json:"version"`
	RootQuestionID string `json:"root_question_id"`
	Questions      int    `json:"questions"`
}

type questionView struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Attribute string            `json:"attribute,omitempty"`
	Type      string            `json:"type"`
	Options   []qna.Option      `json:"options,omitempty"`
	FollowUps map[string]string `json:"follow_ups,omitempty"`
	EndOfTree bool              `json:"end_of_tree"`
}

func newQuestionView(q *qna.Question) *questionView {
	if q == nil {
		return nil
	}
	return &questionView{
		ID:        q.ID,
		Text:      q.Text,
		Attribute: q.Attribute,
		Type:      string(q.Type),
		Options:   q.Options,
		FollowUps: q.FollowUps,
		EndOfTree: q.EndOfTree,
	}
}

type requirementsRequest struct {
	Requirements []qna.RequiresSkillEdge `json:"requirements"`
}

type scoreRequest struct {
	JobID   string   `json:"job_id"`
	UserID  string   `json:"user_id"`
	UserIDs []string `json:"user_ids"`
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(c, http.StatusBadRequest, codeBadRequest, errors.New("message is required"))
		return
	}

	state := &dialogue.ChatState{
		Messages:          append(req.History, dialogue.Message{Role: dialogue.RoleUser, Content: req.Message}),
		UserID:            c.GetString(ctxUserID),
		UserType:          c.GetString(ctxUserType),
		QnaTreeID:         req.QnaTreeID,
		CurrentQuestionID: req.CurrentQuestionID,
		QnaMode:           req.QnaMode,
	}

	state, err := s.deps.Dialogue.Handle(c.Request.Context(), state)
	if err != nil {
		s.logger.Error("dialogue turn failed", zap.String("user_id", c.GetString(ctxUserID)), zap.Error(err))
		respondError(c, http.StatusInternalServerError, codeInternal, errors.New("could not handle the message"))
		return
	}

	route, _ := state.Metadata[dialogue.MetadataRouteDecision].(string)
	respondOK(c, ChatResponse{
		Reply: state.LastAssistantMessage(),
		Route: route,
		State: state,
	})
}

func (s *Server) trees(c *gin.Context) {
	trees := s.deps.QnA.Trees()
	views := make([]treeView, 0, len(trees))
	for _, t := range trees {
		views = append(views, treeView{
			TreeID:         t.TreeID,
			UserType:       t.UserType,
			Namespace:      t.Namespace,
			Version:        t.Version,
			RootQuestionID: t.RootQuestionID,
			Questions:      len(t.Questions),
		})
	}
	respondOK(c, gin.H{"trees": views})
}

func (s *Server) nextQuestion(c *gin.Context) {
	userID := c.Param("user_id")
	treeID := strings.TrimSpace(c.Query("tree_id"))
	if treeID == "" {
		respondError(c, http.StatusBadRequest, codeBadRequest, errors.New("tree_id is required"))
		return
	}
	if _, ok := s.deps.QnA.Tree(treeID); !ok {
		respondErr(c, fmt.Errorf("tree %q: %w", treeID, qna.ErrNotFound))
		return
	}

	next := s.deps.QnA.NextQuestionForUser(c.Request.Context(), userID, treeID)
	respondOK(c, gin.H{
		"tree_id":  treeID,
		"question": newQuestionView(next),
		"finished": next == nil,
	})
}

func (s *Server) traits(c *gin.Context) {
	userID := c.Param("user_id")
	traits, err := s.deps.QnA.UserTraits(c.Request.Context(), userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"user_id": userID, "traits": traits})
}

func (s *Server) explain(c *gin.Context) {
	userID := c.Param("user_id")
	attribute := c.Param("attribute")
	answers, err := s.deps.QnA.ExplainAttribute(c.Request.Context(), userID, attribute)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"user_id": userID, "attribute": attribute, "answers": answers})
}

func (s *Server) requirements(c *gin.Context) {
	jobID := c.Param("job_id")

	var req requirementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	if len(req.Requirements) == 0 {
		respondError(c, http.StatusBadRequest, codeBadRequest, errors.New("requirements are empty"))
		return
	}

	for i, edge := range req.Requirements {
		edge.JobID = jobID
		if edge.Weight == 0 {
			edge.Weight = 1
		}
		if err := s.deps.QnA.UpsertRequirement(c.Request.Context(), edge); err != nil {
			if errors.Is(err, qna.ErrPersistence) {
				respondErr(c, err)
				return
			}
			respondError(c, http.StatusBadRequest, codeBadRequest, fmt.Errorf("requirements[%d]: %w", i, err))
			return
		}
	}

	respondOK(c, gin.H{"job_id": jobID, "count": len(req.Requirements)})
}

func (s *Server) score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	if req.JobID == "" {
		respondError(c, http.StatusBadRequest, codeBadRequest, errors.New("job_id is required"))
		return
	}

	if req.UserID != "" {
		result, err := s.deps.Scoring.Score(c.Request.Context(), req.JobID, req.UserID)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, result)
		return
	}

	if len(req.UserIDs) == 0 {
		respondError(c, http.StatusBadRequest, codeBadRequest, errors.New("user_id or user_ids is required"))
		return
	}

	results, err := s.deps.Scoring.Rank(c.Request.Context(), req.JobID, req.UserIDs)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"job_id": req.JobID, "results": results})
}

func (s *Server) reload(c *gin.Context) {
	trees, err := s.deps.QnA.Reload(c.Request.Context(), s.deps.TreesDir)
	if err != nil {
		respondErr(c, err)
		return
	}

	ids := make([]string, 0, len(trees))
	for _, t := range trees {
		ids = append(ids, t.TreeID)
	}
	respondOK(c, gin.H{"trees": ids})
}
