package ai

import (
	"math"
	"strings"
	"testing"
)

func TestParseObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "plain", raw: `{"kind": "polyglot"}`},
		{name: "fenced", raw: "```json\n{\"kind\": \"polyglot\"}\n```"},
		{name: "prose around", raw: `Sure! {"kind": "polyglot"} Hope this helps.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ParseObject(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if data["kind"] != "polyglot" {
				t.Fatalf("unexpected data: %#v", data)
			}
		})
	}

	if _, err := ParseObject("no json here"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCoerce(t *testing.T) {
	if got := CoerceString(" go "); got != "go" {
		t.Fatalf("unexpected string: %q", got)
	}
	if got := CoerceString(nil); got != "" {
		t.Fatalf("expected empty string for nil, got %q", got)
	}
	if got := CoerceFloat("0.75"); got != 0.75 {
		t.Fatalf("unexpected float: %v", got)
	}
	if !math.IsNaN(CoerceFloat("abc")) {
		t.Fatal("expected NaN for non-numeric input")
	}
}

func TestSchemaJSONSchema(t *testing.T) {
	schema := Schema{
		Name: "ProgrammingLanguagePreference",
		Properties: []Property{
			{Name: "kind", Type: TypeString, Enum: []string{"polyglot", "single_language", "unknown"}},
			{Name: "language_name", Type: TypeString},
		},
		Required: []string{"kind"},
	}

	doc := schema.JSONSchema()
	for _, want := range []string{`"title":"ProgrammingLanguagePreference"`, `"enum":["polyglot","single_language","unknown"]`, `"required":["kind"]`} {
		if !strings.Contains(doc, want) {
			t.Fatalf("expected %s in %s", want, doc)
		}
	}
}
