package graph

import (
	"reflect"
	"testing"
)

func TestParseAgtype(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		expect any
	}{
		{name: "empty", raw: "  ", expect: nil},
		{name: "scalar numeric", raw: "1.5::numeric", expect: 1.5},
		{name: "string keeps colons", raw: `"a::b"`, expect: "a::b"},
		{
			name:   "map",
			raw:    `{"attribute": "programming_language", "strength": 1.0, "confidence": 0.9}`,
			expect: map[string]any{"attribute": "programming_language", "strength": 1.0, "confidence": 0.9},
		},
		{
			name: "vertex",
			raw:  `{"id": 844424930131969, "label": "User", "properties": {"id": "u-1"}}::vertex`,
			expect: map[string]any{
				"id":         float64(844424930131969),
				"label":      "User",
				"properties": map[string]any{"id": "u-1"},
			},
		},
		{
			name:   "escaped quote inside string",
			raw:    `{"raw_text": "say \"hi\"::x"}`,
			expect: map[string]any{"raw_text": `say "hi"::x`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAgtype(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expect) {
				t.Fatalf("expected %#v, got %#v", tt.expect, got)
			}
		})
	}
}

func TestParseAgtypeRejectsGarbage(t *testing.T) {
	if _, err := parseAgtype("{not json"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestUnwrap(t *testing.T) {
	row := unwrap(map[string]any{"row": map[string]any{"key": "go"}})
	if row["key"] != "go" {
		t.Fatalf("expected unwrapped row, got %#v", row)
	}

	row = unwrap(map[string]any{"key": "go", "other": 1})
	if row["key"] != "go" || len(row) != 2 {
		t.Fatalf("expected plain map to pass through, got %#v", row)
	}

	row = unwrap(float64(3))
	if row[ResultKey] != float64(3) {
		t.Fatalf("expected scalar under result key, got %#v", row)
	}
}
