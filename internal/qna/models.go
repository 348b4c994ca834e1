package qna

import (
	"sort"
	"time"
)

type QuestionType string

const (
	FreeText           QuestionType = "free_text"
	FreeTextClassified QuestionType = "free_text_classified"
	SingleChoice       QuestionType = "single_choice"

	// DefaultFollowUp is the follow-up key used when no value-specific route matches.
	DefaultFollowUp = "default"
	// DefaultSource marks answers captured by a question tree.
	DefaultSource = "qa_tree"
	// UnknownValue is stored when an answer could not be normalized.
	UnknownValue = "unknown"
)

func (t QuestionType) Valid() bool {
	switch t {
	case FreeText, FreeTextClassified, SingleChoice:
		return true
	default:
		return false
	}
}

// ClassifierSpec selects how free_text_classified answers are interpreted.
type ClassifierSpec struct {
	Strategy string
	// Schema names the structured output, e.g. ProgrammingLanguagePreference.
	Schema  string
	Options map[string]any
}

type Option struct {
	Value string
	Label string
}

type Question struct {
	ID               string
	Text             string
	GenerationPrompt string
	Attribute        string
	Type             QuestionType
	Classifier       *ClassifierSpec
	Options          []Option
	FollowUps        map[string]string
	EndOfTree        bool
	UserType         string
}

// FollowUp resolves the next question id for a normalized answer value.
func (q *Question) FollowUp(value string) (string, bool) {
	if q == nil {
		return "", false
	}
	if next, ok := q.FollowUps[value]; ok && next != "" {
		return next, true
	}
	if next, ok := q.FollowUps[DefaultFollowUp]; ok && next != "" {
		return next, true
	}
	return "", false
}

// TraitAttribute is the attribute the answer populates, falling back to the question id.
func (q *Question) TraitAttribute() string {
	if q.Attribute != "" {
		return q.Attribute
	}
	return q.ID
}

// QuestionTree is immutable once loaded.
type QuestionTree struct {
	TreeID         string
	UserType       string
	Namespace      string
	Version        int
	RootQuestionID string
	Questions      map[string]*Question
	// Source is the file the tree was loaded from, if any.
	Source string
}

func (t *QuestionTree) Question(id string) (*Question, bool) {
	if t == nil {
		return nil, false
	}
	q, ok := t.Questions[id]
	return q, ok
}

func (t *QuestionTree) Root() *Question {
	q, _ := t.Question(t.RootQuestionID)
	return q
}

// QuestionIDs returns question ids in a stable order.
func (t *QuestionTree) QuestionIDs() []string {
	ids := make([]string, 0, len(t.Questions))
	for id := range t.Questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type AnswerRecord struct {
	ID              string
	UserID          string
	TreeID          string
	QuestionID      string
	RawText         string
	NormalizedValue *string
	Attributes      map[string]any
	Confidence      float64
	Timestamp       time.Time
	Source          string
}

// Value returns the normalized value or empty string.
func (a *AnswerRecord) Value() string {
	if a == nil || a.NormalizedValue == nil {
		return ""
	}
	return *a.NormalizedValue
}

type ConceptStatus string

const (
	ConceptCanonical ConceptStatus = "canonical"
	ConceptCandidate ConceptStatus = "candidate"
	ConceptUnknown   ConceptStatus = "unknown"
)

type Concept struct {
	Type   string
	Key    string
	Label  string
	Status ConceptStatus
}

// Trait links a user to a concept through an attribute.
type Trait struct {
	Attribute       string
	NormalizedValue string
	Strength        float64
	Confidence      float64
	ConceptType     string
	ConceptKey      string
}

// Concept derives the concept node a trait points at.
func (t Trait) Concept() Concept {
	status := ConceptCandidate
	if t.ConceptKey == UnknownValue {
		status = ConceptUnknown
	}
	return Concept{Type: t.ConceptType, Key: t.ConceptKey, Label: t.NormalizedValue, Status: status}
}

type TraitRow struct {
	Attribute       string  `mapstructure:"attribute" json:"attribute"`
	NormalizedValue string  `mapstructure:"normalized_value" json:"normalized_value"`
	Strength        float64 `mapstructure:"strength" json:"strength"`
	Confidence      float64 `mapstructure:"confidence" json:"confidence"`
	ConceptKey      string  `mapstructure:"concept_key" json:"concept_key"`
	ConceptType     string  `mapstructure:"concept_type" json:"concept_type"`
}

type RequiresSkillEdge struct {
	JobID       string  `json:"job_id"`
	ConceptType string  `json:"concept_type"`
	ConceptKey  string  `json:"concept_key"`
	Attribute   string  `json:"attribute"`
	Weight      float64 `json:"weight"`
	Required    bool    `json:"required"`
}

// Explanation ties a trait attribute back to the answers that produced it.
type Explanation struct {
	QuestionID      string  `mapstructure:"question_id" json:"question_id"`
	QuestionText    string  `mapstructure:"question_text" json:"question_text"`
	RawText         string  `mapstructure:"raw_text" json:"raw_text"`
	NormalizedValue string  `mapstructure:"normalized_value" json:"normalized_value"`
	Confidence      float64 `mapstructure:"confidence" json:"confidence"`
	Timestamp       string  `mapstructure:"timestamp" json:"timestamp"`
}
