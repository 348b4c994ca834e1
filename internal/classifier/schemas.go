package classifier

import (
	"regexp"
	"strings"

	"github.com/spigell/talentflow/internal/ai"
	"github.com/spigell/talentflow/internal/qna"
)

const (
	KindPolyglot       = "polyglot"
	KindSingleLanguage = "single_language"
	KindUnknown        = qna.UnknownValue

	KindRemote = "remote"
	KindHybrid = "hybrid"
	KindOnsite = "onsite"
)

// Schema is a structured output an answer can be extracted into.
type Schema interface {
	Name() string
	// Definition is what the language model is asked to fill.
	Definition() ai.Schema
	// Heuristic extracts the same attributes without a model.
	Heuristic(answer string) map[string]any
	// Normalize maps extracted attributes to a follow-up value.
	Normalize(attributes map[string]any) string
	// Outputs lists every value Normalize can return, when finite.
	Outputs() []string
}

var polyglotPhrases = []string{
	"depends",
	"no favorite",
	"whatever",
	"whatever the problem is",
	"depends on the problem",
	"polyglot",
}

type language struct {
	name    string
	pattern *regexp.Regexp
}

// Checked in order, first match wins.
var languages = []language{
	newLanguage("python"),
	newLanguage("java"),
	newLanguage("go"),
	newLanguage("rust"),
	newLanguage("typescript"),
	newLanguage("javascript"),
	newLanguage("c++"),
	newLanguage("c#"),
	newLanguage("ruby"),
}

func newLanguage(name string) language {
	// \b does not work around symbols like "+" and "#", so boundaries are explicit.
	expr := `(^|[^a-z0-9+#])` + regexp.QuoteMeta(name) + `($|[^a-z0-9+#])`
	return language{name: name, pattern: regexp.MustCompile(expr)}
}

// ProgrammingLanguagePreference captures a favourite language or the lack of one.
type ProgrammingLanguagePreference struct{}

func (ProgrammingLanguagePreference) Name() string { return "ProgrammingLanguagePreference" }

func (ProgrammingLanguagePreference) Definition() ai.Schema {
	return ai.Schema{
		Name:        "ProgrammingLanguagePreference",
		Description: "The programming language a candidate prefers, or whether they are a polyglot.",
		Properties: []ai.Property{
			{
				Name:        "kind",
				Type:        ai.TypeString,
				Description: "polyglot when the candidate has no single favourite, single_language when they name one.",
				Enum:        []string{KindPolyglot, KindSingleLanguage, KindUnknown},
			},
			{
				Name:        "language_name",
				Type:        ai.TypeString,
				Description: "The preferred language when kind is single_language, empty otherwise.",
			},
		},
		Required: []string{"kind"},
	}
}

func (ProgrammingLanguagePreference) Heuristic(answer string) map[string]any {
	lower := strings.ToLower(answer)
	for _, phrase := range polyglotPhrases {
		if strings.Contains(lower, phrase) {
			return map[string]any{"kind": KindPolyglot}
		}
	}

	for _, lang := range languages {
		if lang.pattern.MatchString(lower) {
			return map[string]any{"kind": KindSingleLanguage, "language_name": lang.name}
		}
	}

	return map[string]any{"kind": KindUnknown}
}

func (ProgrammingLanguagePreference) Normalize(attributes map[string]any) string {
	switch ai.CoerceString(attributes["kind"]) {
	case KindPolyglot:
		return KindPolyglot
	case KindSingleLanguage:
		name := ai.CoerceString(attributes["language_name"])
		if name == "" {
			return KindUnknown
		}
		if slug := Slug(name); slug != "" {
			return slug
		}
		return KindUnknown
	default:
		return KindUnknown
	}
}

func (ProgrammingLanguagePreference) Outputs() []string {
	out := []string{KindPolyglot, KindUnknown}
	seen := map[string]bool{}
	for _, lang := range languages {
		// "c++" and "c#" share the slug "c".
		if slug := Slug(lang.name); !seen[slug] {
			seen[slug] = true
			out = append(out, slug)
		}
	}
	return out
}

// WorkArrangementPreference captures where a person wants to work.
type WorkArrangementPreference struct{}

func (WorkArrangementPreference) Name() string { return "WorkArrangementPreference" }

func (WorkArrangementPreference) Definition() ai.Schema {
	return ai.Schema{
		Name:        "WorkArrangementPreference",
		Description: "The preferred work arrangement.",
		Properties: []ai.Property{
			{
				Name: "kind",
				Type: ai.TypeString,
				Enum: []string{KindRemote, KindHybrid, KindOnsite, KindUnknown},
			},
		},
		Required: []string{"kind"},
	}
}

var workPhrases = []struct {
	kind    string
	phrases []string
}{
	{KindHybrid, []string{"hybrid", "mix", "couple of days", "few days in", "both"}},
	{KindRemote, []string{"remote", "from home", "wfh", "anywhere", "distributed"}},
	{KindOnsite, []string{"onsite", "on-site", "on site", "in office", "in the office", "office"}},
}

func (WorkArrangementPreference) Heuristic(answer string) map[string]any {
	lower := strings.ToLower(answer)
	for _, group := range workPhrases {
		for _, phrase := range group.phrases {
			if strings.Contains(lower, phrase) {
				return map[string]any{"kind": group.kind}
			}
		}
	}
	return map[string]any{"kind": KindUnknown}
}

func (WorkArrangementPreference) Normalize(attributes map[string]any) string {
	switch kind := Slug(ai.CoerceString(attributes["kind"])); kind {
	case KindRemote, KindHybrid, KindOnsite:
		return kind
	case "on_site":
		return KindOnsite
	default:
		return KindUnknown
	}
}

func (WorkArrangementPreference) Outputs() []string {
	return []string{KindRemote, KindHybrid, KindOnsite, KindUnknown}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases s and collapses non-alphanumeric runs into single underscores.
func Slug(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_"), "_")
}
