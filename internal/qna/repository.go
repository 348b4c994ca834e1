package qna

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/talentflow/internal/graph"
	"github.com/spigell/talentflow/internal/scoring"
	"go.uber.org/zap"
)

const (
	upsertTreeQuery = `
MERGE (t:QTree {tree_id: $tree_id, user_type: $user_type})
SET t.namespace = $namespace, t.version = $version, t.root_question_id = $root_question_id`

	upsertQuestionQuery = `
MATCH (t:QTree {tree_id: $tree_id, user_type: $user_type})
MERGE (q:Question {id: $id, tree_id: $tree_id})
SET q.text = $text, q.attribute = $attribute, q.qtype = $qtype, q.namespace = $namespace,
    q.end_of_tree = $end_of_tree, q.generation_prompt = $generation_prompt
MERGE (t)-[:HAS_QUESTION]->(q)`

	upsertFollowUpQuery = `
MATCH (a:Question {id: $from_id, tree_id: $tree_id}), (b:Question {id: $to_id, tree_id: $tree_id})
MERGE (a)-[:NEXT {value: $value}]->(b)`

	recordAnswerQuery = `
MERGE (u:User {id: $user_id})
MERGE (q:Question {id: $question_id, tree_id: $tree_id})
CREATE (a:Answer {id: $answer_id, tree_id: $tree_id, question_id: $question_id, raw_text: $raw_text,
    normalized_value: $normalized_value, confidence: $confidence, timestamp: $timestamp,
    source: $source, attributes_json: $attributes_json})
CREATE (u)-[:GAVE_ANSWER]->(a)
CREATE (a)-[:ABOUT]->(q)`

	upsertTraitQuery = `
MERGE (u:User {id: $user_id})
MERGE (c:Concept {type: $concept_type, key: $concept_key})
SET c.label = coalesce(c.label, $label), c.status = coalesce(c.status, $status)
MERGE (u)-[h:HAS_TRAIT {attribute: $attribute, normalized_value: $normalized_value}]->(c)
SET h.strength = $strength, h.confidence = $confidence, h.updated_at = $timestamp`

	lastAnswerQuery = `
MATCH (u:User {id: $user_id})-[:GAVE_ANSWER]->(a:Answer)-[:ABOUT]->(q:Question {tree_id: $tree_id})
WITH a ORDER BY a.timestamp DESC LIMIT 1
RETURN {id: a.id, question_id: a.question_id, raw_text: a.raw_text, normalized_value: a.normalized_value,
    confidence: a.confidence, timestamp: a.timestamp, source: a.source, attributes_json: a.attributes_json} AS row`

	answeredQuestionsQuery = `
MATCH (u:User {id: $user_id})-[:GAVE_ANSWER]->(a:Answer)-[:ABOUT]->(q:Question {tree_id: $tree_id})
RETURN {question_id: q.id} AS row`

	userTraitsQuery = `
MATCH (u:User {id: $user_id})-[h:HAS_TRAIT]->(c:Concept)
RETURN {attribute: h.attribute, normalized_value: h.normalized_value, strength: h.strength,
    confidence: h.confidence, concept_key: c.key, concept_type: c.type} AS row`

	explainAttributeQuery = `
MATCH (u:User {id: $user_id})-[:GAVE_ANSWER]->(a:Answer)-[:ABOUT]->(q:Question {attribute: $attribute})
WITH a, q ORDER BY a.timestamp DESC
RETURN {question_id: q.id, question_text: q.text, raw_text: a.raw_text, normalized_value: a.normalized_value,
    confidence: a.confidence, timestamp: a.timestamp} AS row`

	upsertRequirementQuery = `
MERGE (j:Job {id: $job_id})
MERGE (c:Concept {type: $concept_type, key: $concept_key})
MERGE (j)-[r:REQUIRES_SKILL {attribute: $attribute}]->(c)
SET r.weight = $weight, r.required = $required`

	sharedConceptsQuery = `
MATCH (j:Job {id: $job_id})-[r:REQUIRES_SKILL]->(c:Concept)<-[h:HAS_TRAIT]-(u:User {id: $user_id})
RETURN {attribute: r.attribute, weight: r.weight, strength: h.strength, confidence: h.confidence,
    concept_type: c.type, concept_key: c.key} AS row`
)

// GraphRepository owns every Cypher statement the service needs.
type GraphRepository struct {
	client graph.Client
	logger *zap.Logger
}

func NewGraphRepository(client graph.Client, logger *zap.Logger) *GraphRepository {
	return &GraphRepository{client: client, logger: logger}
}

// UpsertTree is idempotent. Statements run one by one, so a failure can leave a partial tree.
func (r *GraphRepository) UpsertTree(ctx context.Context, tree *QuestionTree) error {
	base := map[string]any{
		"tree_id":   tree.TreeID,
		"user_type": tree.UserType,
		"namespace": tree.Namespace,
	}

	if _, err := r.client.Run(ctx, upsertTreeQuery, with(base, map[string]any{
		"version":          tree.Version,
		"root_question_id": tree.RootQuestionID,
	})); err != nil {
		return persistenceError("upsert tree "+tree.TreeID, err)
	}

	ids := tree.QuestionIDs()
	for _, id := range ids {
		q := tree.Questions[id]
		if _, err := r.client.Run(ctx, upsertQuestionQuery, with(base, map[string]any{
			"id":                q.ID,
			"text":              q.Text,
			"attribute":         q.Attribute,
			"qtype":             string(q.Type),
			"end_of_tree":       q.EndOfTree,
			"generation_prompt": q.GenerationPrompt,
		})); err != nil {
			return persistenceError("upsert question "+q.ID, err)
		}
	}

	for _, id := range ids {
		q := tree.Questions[id]
		for value, target := range q.FollowUps {
			if _, err := r.client.Run(ctx, upsertFollowUpQuery, map[string]any{
				"tree_id": tree.TreeID,
				"from_id": q.ID,
				"to_id":   target,
				"value":   value,
			}); err != nil {
				return persistenceError("upsert follow-up "+q.ID+"->"+target, err)
			}
		}
	}

	r.logger.Debug("tree upserted", zap.String("tree_id", tree.TreeID), zap.Int("questions", len(ids)))
	return nil
}

func (r *GraphRepository) RecordAnswer(ctx context.Context, answer AnswerRecord, traits []Trait) error {
	attributes := "{}"
	if len(answer.Attributes) > 0 {
		encoded, err := json.Marshal(answer.Attributes)
		if err != nil {
			return fmt.Errorf("encode answer attributes: %w", err)
		}
		attributes = string(encoded)
	}

	var normalized any
	if answer.NormalizedValue != nil {
		normalized = *answer.NormalizedValue
	}

	timestamp := formatTimestamp(answer.Timestamp)

	if _, err := r.client.Run(ctx, recordAnswerQuery, map[string]any{
		"user_id":          answer.UserID,
		"tree_id":          answer.TreeID,
		"question_id":      answer.QuestionID,
		"answer_id":        answer.ID,
		"raw_text":         answer.RawText,
		"normalized_value": normalized,
		"confidence":       answer.Confidence,
		"timestamp":        timestamp,
		"source":           answer.Source,
		"attributes_json":  attributes,
	}); err != nil {
		return persistenceError("record answer", err)
	}

	for _, trait := range traits {
		concept := trait.Concept()
		if _, err := r.client.Run(ctx, upsertTraitQuery, map[string]any{
			"user_id":          answer.UserID,
			"concept_type":     concept.Type,
			"concept_key":      concept.Key,
			"label":            concept.Label,
			"status":           string(concept.Status),
			"attribute":        trait.Attribute,
			"normalized_value": trait.NormalizedValue,
			"strength":         trait.Strength,
			"confidence":       trait.Confidence,
			"timestamp":        timestamp,
		}); err != nil {
			return persistenceError("upsert trait "+trait.Attribute, err)
		}
	}

	return nil
}

type answerRow struct {
	ID              string  `mapstructure:"id"`
	QuestionID      string  `mapstructure:"question_id"`
	RawText         string  `mapstructure:"raw_text"`
	NormalizedValue *string `mapstructure:"normalized_value"`
	Confidence      float64 `mapstructure:"confidence"`
	Timestamp       string  `mapstructure:"timestamp"`
	Source          string  `mapstructure:"source"`
	AttributesJSON  string  `mapstructure:"attributes_json"`
}

func (r *GraphRepository) LastAnswer(ctx context.Context, userID, treeID string) (*AnswerRecord, error) {
	rows, err := r.client.Run(ctx, lastAnswerQuery, map[string]any{"user_id": userID, "tree_id": treeID})
	if err != nil {
		return nil, persistenceError("last answer", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var row answerRow
	if err := decodeRow(rows[0], &row); err != nil {
		return nil, err
	}

	record := &AnswerRecord{
		ID:              row.ID,
		UserID:          userID,
		TreeID:          treeID,
		QuestionID:      row.QuestionID,
		RawText:         row.RawText,
		NormalizedValue: row.NormalizedValue,
		Confidence:      row.Confidence,
		Timestamp:       parseTimestamp(row.Timestamp),
		Source:          row.Source,
	}

	if row.AttributesJSON != "" {
		if err := json.Unmarshal([]byte(row.AttributesJSON), &record.Attributes); err != nil {
			r.logger.Debug("ignoring malformed answer attributes", zap.String("answer_id", row.ID), zap.Error(err))
		}
	}

	return record, nil
}

func (r *GraphRepository) AnsweredQuestionIDs(ctx context.Context, userID, treeID string) ([]string, error) {
	rows, err := r.client.Run(ctx, answeredQuestionsQuery, map[string]any{"user_id": userID, "tree_id": treeID})
	if err != nil {
		return nil, persistenceError("answered questions", err)
	}

	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, _ := row["question_id"].(string)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

func (r *GraphRepository) UserTraits(ctx context.Context, userID string) (map[string][]TraitRow, error) {
	rows, err := r.client.Run(ctx, userTraitsQuery, map[string]any{"user_id": userID})
	if err != nil {
		return nil, persistenceError("user traits", err)
	}

	traits := make([]TraitRow, 0, len(rows))
	for _, row := range rows {
		var trait TraitRow
		if err := decodeRow(row, &trait); err != nil {
			return nil, err
		}
		traits = append(traits, trait)
	}

	return groupTraits(traits), nil
}

func (r *GraphRepository) ExplainAttribute(ctx context.Context, userID, attribute string) ([]Explanation, error) {
	rows, err := r.client.Run(ctx, explainAttributeQuery, map[string]any{"user_id": userID, "attribute": attribute})
	if err != nil {
		return nil, persistenceError("explain attribute", err)
	}

	explanations := make([]Explanation, 0, len(rows))
	for _, row := range rows {
		var e Explanation
		if err := decodeRow(row, &e); err != nil {
			return nil, err
		}
		explanations = append(explanations, e)
	}

	return explanations, nil
}

func (r *GraphRepository) UpsertRequirement(ctx context.Context, edge RequiresSkillEdge) error {
	if _, err := r.client.Run(ctx, upsertRequirementQuery, map[string]any{
		"job_id":       edge.JobID,
		"concept_type": edge.ConceptType,
		"concept_key":  edge.ConceptKey,
		"attribute":    edge.Attribute,
		"weight":       edge.Weight,
		"required":     edge.Required,
	}); err != nil {
		return persistenceError("upsert requirement", err)
	}
	return nil
}

func (r *GraphRepository) SharedConcepts(ctx context.Context, jobID, userID string) ([]scoring.Match, error) {
	rows, err := r.client.Run(ctx, sharedConceptsQuery, map[string]any{"job_id": jobID, "user_id": userID})
	if err != nil {
		return nil, persistenceError("shared concepts", err)
	}

	matches := make([]scoring.Match, 0, len(rows))
	for _, row := range rows {
		var m scoring.Match
		if err := decodeRow(row, &m); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	return matches, nil
}

func decodeRow(row graph.Row, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]any(row)); err != nil {
		return fmt.Errorf("decode graph row: %w", err)
	}
	return nil
}

func with(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
