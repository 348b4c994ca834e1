package ai

import (
	"context"
	"encoding/json"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Client is an LLM provider able to answer free-form and schema-constrained prompts.
type Client interface {
	Provider() string
	Model() string
	GenerateText(ctx context.Context, system, user string) (string, error)
	// GenerateJSON asks for an object matching schema and returns it decoded.
	GenerateJSON(ctx context.Context, system, user string, schema Schema) (map[string]any, error)
}

// Schema is a flat object description shared by all providers.
type Schema struct {
	Name        string
	Description string
	Properties  []Property
	Required    []string
}

type Property struct {
	Name        string
	Type        string
	Description string
	Enum        []string
}

const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// JSONSchema renders the schema as a JSON Schema document for prompt embedding.
func (s Schema) JSONSchema() string {
	properties := make(map[string]any, len(s.Properties))
	for _, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
	}

	doc := map[string]any{
		"title":      s.Name,
		"type":       "object",
		"properties": properties,
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}

	out, _ := json.Marshal(doc)
	return string(out)
}
