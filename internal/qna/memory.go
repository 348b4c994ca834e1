package qna

import (
	"context"
	"sort"
	"sync"

	"github.com/spigell/talentflow/internal/scoring"
)

type traitKey struct {
	conceptType string
	conceptKey  string
	attribute   string
	normalized  string
}

type requirementKey struct {
	conceptType string
	conceptKey  string
	attribute   string
}

// MemoryStore keeps the graph in process with the same merge semantics as
// GraphRepository. Data is lost on restart.
type MemoryStore struct {
	mu           sync.RWMutex
	questions    map[string]map[string]*Question
	answers      map[string][]AnswerRecord
	traits       map[string]map[traitKey]TraitRow
	concepts     map[[2]string]Concept
	requirements map[string]map[requirementKey]RequiresSkillEdge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions:    make(map[string]map[string]*Question),
		answers:      make(map[string][]AnswerRecord),
		traits:       make(map[string]map[traitKey]TraitRow),
		concepts:     make(map[[2]string]Concept),
		requirements: make(map[string]map[requirementKey]RequiresSkillEdge),
	}
}

func (m *MemoryStore) UpsertTree(_ context.Context, tree *QuestionTree) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	questions := make(map[string]*Question, len(tree.Questions))
	for id, q := range tree.Questions {
		questions[id] = q
	}
	m.questions[tree.TreeID] = questions
	return nil
}

func (m *MemoryStore) RecordAnswer(_ context.Context, answer AnswerRecord, traits []Trait) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.answers[answer.UserID] = append(m.answers[answer.UserID], answer)

	userTraits, ok := m.traits[answer.UserID]
	if !ok {
		userTraits = make(map[traitKey]TraitRow)
		m.traits[answer.UserID] = userTraits
	}

	for _, trait := range traits {
		concept := trait.Concept()
		id := [2]string{concept.Type, concept.Key}
		if _, exists := m.concepts[id]; !exists {
			m.concepts[id] = concept
		}

		key := traitKey{
			conceptType: concept.Type,
			conceptKey:  concept.Key,
			attribute:   trait.Attribute,
			normalized:  trait.NormalizedValue,
		}
		userTraits[key] = TraitRow{
			Attribute:       trait.Attribute,
			NormalizedValue: trait.NormalizedValue,
			Strength:        trait.Strength,
			Confidence:      trait.Confidence,
			ConceptKey:      concept.Key,
			ConceptType:     concept.Type,
		}
	}

	return nil
}

func (m *MemoryStore) LastAnswer(_ context.Context, userID, treeID string) (*AnswerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *AnswerRecord
	for i := range m.answers[userID] {
		answer := m.answers[userID][i]
		if answer.TreeID != treeID {
			continue
		}
		if last == nil || !answer.Timestamp.Before(last.Timestamp) {
			copied := answer
			last = &copied
		}
	}

	return last, nil
}

func (m *MemoryStore) AnsweredQuestionIDs(_ context.Context, userID, treeID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, answer := range m.answers[userID] {
		if answer.TreeID != treeID {
			continue
		}
		if _, dup := seen[answer.QuestionID]; dup {
			continue
		}
		seen[answer.QuestionID] = struct{}{}
		ids = append(ids, answer.QuestionID)
	}

	return ids, nil
}

func (m *MemoryStore) UserTraits(_ context.Context, userID string) (map[string][]TraitRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]TraitRow, 0, len(m.traits[userID]))
	for _, row := range m.traits[userID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Attribute != rows[j].Attribute {
			return rows[i].Attribute < rows[j].Attribute
		}
		return rows[i].NormalizedValue < rows[j].NormalizedValue
	})

	return groupTraits(rows), nil
}

func (m *MemoryStore) ExplainAttribute(_ context.Context, userID, attribute string) ([]Explanation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	answers := make([]AnswerRecord, 0)
	for _, answer := range m.answers[userID] {
		q, ok := m.questions[answer.TreeID][answer.QuestionID]
		if !ok || q.Attribute != attribute {
			continue
		}
		answers = append(answers, answer)
	}

	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Timestamp.After(answers[j].Timestamp) })

	explanations := make([]Explanation, 0, len(answers))
	for _, answer := range answers {
		q := m.questions[answer.TreeID][answer.QuestionID]
		explanations = append(explanations, Explanation{
			QuestionID:      q.ID,
			QuestionText:    q.Text,
			RawText:         answer.RawText,
			NormalizedValue: answer.Value(),
			Confidence:      answer.Confidence,
			Timestamp:       formatTimestamp(answer.Timestamp),
		})
	}

	return explanations, nil
}

func (m *MemoryStore) UpsertRequirement(_ context.Context, edge RequiresSkillEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := [2]string{edge.ConceptType, edge.ConceptKey}
	if _, exists := m.concepts[id]; !exists {
		m.concepts[id] = Concept{Type: edge.ConceptType, Key: edge.ConceptKey, Label: edge.ConceptKey, Status: ConceptCanonical}
	}

	reqs, ok := m.requirements[edge.JobID]
	if !ok {
		reqs = make(map[requirementKey]RequiresSkillEdge)
		m.requirements[edge.JobID] = reqs
	}
	reqs[requirementKey{conceptType: edge.ConceptType, conceptKey: edge.ConceptKey, attribute: edge.Attribute}] = edge

	return nil
}

func (m *MemoryStore) SharedConcepts(_ context.Context, jobID, userID string) ([]scoring.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []scoring.Match
	for key, req := range m.requirements[jobID] {
		for tk, trait := range m.traits[userID] {
			if tk.conceptType != key.conceptType || tk.conceptKey != key.conceptKey {
				continue
			}
			matches = append(matches, scoring.Match{
				Attribute:   req.Attribute,
				Weight:      req.Weight,
				Strength:    trait.Strength,
				Confidence:  trait.Confidence,
				ConceptType: key.conceptType,
				ConceptKey:  key.conceptKey,
			})
		}
	}

	return matches, nil
}
