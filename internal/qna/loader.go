package qna

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawTree struct {
	Version        *int      `yaml:"version"`
	Namespace      string    `yaml:"namespace"`
	UserType       string    `yaml:"user_type"`
	TreeID         string    `yaml:"tree_id"`
	RootQuestionID string    `yaml:"root_question_id"`
	Questions      yaml.Node `yaml:"questions"`
}

type rawQuestion struct {
	ID               string         `yaml:"id"`
	Text             string         `yaml:"text"`
	GenerationPrompt string         `yaml:"generation_prompt"`
	Attribute        string         `yaml:"attribute"`
	Type             string         `yaml:"type"`
	Classifier       map[string]any `yaml:"classifier"`
	Options          []any          `yaml:"options"`
	FollowUps        map[string]any `yaml:"follow_ups"`
	EndOfTree        bool           `yaml:"end_of_tree"`
	UserType         string         `yaml:"user_type"`
}

// Load parses and validates a tree definition. It never touches the graph.
func Load(src []byte) (*QuestionTree, error) {
	return load(src, "")
}

func LoadFile(path string) (*QuestionTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tree file: %w", err)
	}
	return load(data, path)
}

// LoadDir loads every *.yaml and *.yml file in dir. The first invalid tree aborts the load.
func LoadDir(dir string) ([]*QuestionTree, error) {
	return LoadFS(os.DirFS(dir), dir)
}

func LoadFS(fsys fs.FS, label string) ([]*QuestionTree, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("listing trees in %s: %w", label, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	trees := make([]*QuestionTree, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading tree file %s: %w", name, err)
		}

		source := filepath.Join(label, name)
		tree, err := load(data, source)
		if err != nil {
			return nil, err
		}

		if prev, ok := seen[tree.TreeID]; ok {
			return nil, &ValidationError{Source: source, TreeID: tree.TreeID, Msg: "duplicate tree id, already defined in " + prev}
		}
		seen[tree.TreeID] = source
		trees = append(trees, tree)
	}

	return trees, nil
}

func load(src []byte, source string) (*QuestionTree, error) {
	var raw rawTree
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return nil, &ValidationError{Source: source, Msg: "malformed yaml: " + err.Error()}
	}

	invalid := func(field, msg string) error {
		return &ValidationError{Source: source, TreeID: raw.TreeID, Field: field, Msg: msg}
	}

	switch {
	case raw.Version == nil:
		return nil, invalid("version", "missing required key")
	case strings.TrimSpace(raw.Namespace) == "":
		return nil, invalid("namespace", "missing required key")
	case strings.TrimSpace(raw.UserType) == "":
		return nil, invalid("user_type", "missing required key")
	case strings.TrimSpace(raw.TreeID) == "":
		return nil, invalid("tree_id", "missing required key")
	case strings.TrimSpace(raw.RootQuestionID) == "":
		return nil, invalid("root_question_id", "missing required key")
	case raw.Questions.Kind == 0:
		return nil, invalid("questions", "missing required key")
	}

	questions, err := decodeQuestions(&raw.Questions)
	if err != nil {
		return nil, invalid("questions", err.Error())
	}

	tree := &QuestionTree{
		TreeID:         strings.TrimSpace(raw.TreeID),
		UserType:       strings.TrimSpace(raw.UserType),
		Namespace:      strings.TrimSpace(raw.Namespace),
		Version:        *raw.Version,
		RootQuestionID: strings.TrimSpace(raw.RootQuestionID),
		Questions:      make(map[string]*Question, len(questions)),
		Source:         source,
	}

	for i, rq := range questions {
		q, err := buildQuestion(rq, tree.UserType)
		if err != nil {
			return nil, invalid(fmt.Sprintf("questions[%d]", i), err.Error())
		}
		if _, dup := tree.Questions[q.ID]; dup {
			return nil, invalid(fmt.Sprintf("questions[%d]", i), fmt.Sprintf("duplicate question id %q", q.ID))
		}
		tree.Questions[q.ID] = q
	}

	if _, ok := tree.Questions[tree.RootQuestionID]; !ok {
		return nil, invalid("root_question_id", fmt.Sprintf("root question %q is not defined", tree.RootQuestionID))
	}

	for _, id := range tree.QuestionIDs() {
		q := tree.Questions[id]
		for value, target := range q.FollowUps {
			if _, ok := tree.Questions[target]; !ok {
				return nil, invalid("questions."+id+".follow_ups", fmt.Sprintf("value %q points to undefined question %q", value, target))
			}
		}
	}

	return tree, nil
}

// decodeQuestions accepts a list of questions or a mapping keyed by question id.
// Mapping order is preserved.
func decodeQuestions(node *yaml.Node) ([]rawQuestion, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []rawQuestion
		if err := node.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	case yaml.MappingNode:
		list := make([]rawQuestion, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var rq rawQuestion
			if err := node.Content[i+1].Decode(&rq); err != nil {
				return nil, err
			}
			if rq.ID == "" {
				rq.ID = node.Content[i].Value
			}
			list = append(list, rq)
		}
		return list, nil
	default:
		return nil, errors.New("must be a list or a mapping of questions")
	}
}

func buildQuestion(rq rawQuestion, treeUserType string) (*Question, error) {
	id := strings.TrimSpace(rq.ID)
	if id == "" {
		return nil, errors.New("question id is required")
	}
	if strings.TrimSpace(rq.Text) == "" {
		return nil, fmt.Errorf("question %q: text is required", id)
	}

	qtype := QuestionType(strings.TrimSpace(rq.Type))
	if qtype == "" {
		return nil, fmt.Errorf("question %q: type is required", id)
	}
	if !qtype.Valid() {
		return nil, fmt.Errorf("question %q: unknown type %q", id, rq.Type)
	}

	followUps, err := parseFollowUps(rq.FollowUps)
	if err != nil {
		return nil, fmt.Errorf("question %q: %w", id, err)
	}

	options, err := parseOptions(rq.Options)
	if err != nil {
		return nil, fmt.Errorf("question %q: %w", id, err)
	}

	userType := strings.TrimSpace(rq.UserType)
	if userType == "" {
		userType = treeUserType
	}

	return &Question{
		ID:               id,
		Text:             strings.TrimSpace(rq.Text),
		GenerationPrompt: strings.TrimSpace(rq.GenerationPrompt),
		Attribute:        strings.TrimSpace(rq.Attribute),
		Type:             qtype,
		Classifier:       parseClassifier(rq.Classifier),
		Options:          options,
		FollowUps:        followUps,
		EndOfTree:        rq.EndOfTree,
		UserType:         userType,
	}, nil
}

// parseFollowUps accepts both {value: id} and {on_value: {value: id}}.
func parseFollowUps(raw map[string]any) (map[string]string, error) {
	if nested, ok := raw["on_value"]; ok {
		inner, ok := nested.(map[string]any)
		if !ok {
			return nil, errors.New("follow_ups.on_value must be a mapping")
		}
		raw = inner
	}

	followUps := make(map[string]string, len(raw))
	for value, target := range raw {
		id, ok := target.(string)
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("follow-up %q must name a question id", value)
		}
		followUps[strings.TrimSpace(value)] = strings.TrimSpace(id)
	}

	return followUps, nil
}

func parseOptions(raw []any) ([]Option, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	options := make([]Option, 0, len(raw))
	for i, item := range raw {
		switch v := item.(type) {
		case string:
			options = append(options, Option{Value: strings.TrimSpace(v), Label: strings.TrimSpace(v)})
		case map[string]any:
			value, _ := v["value"].(string)
			label, _ := v["label"].(string)
			if strings.TrimSpace(value) == "" {
				return nil, fmt.Errorf("options[%d]: value is required", i)
			}
			if strings.TrimSpace(label) == "" {
				label = value
			}
			options = append(options, Option{Value: strings.TrimSpace(value), Label: strings.TrimSpace(label)})
		default:
			options = append(options, Option{Value: fmt.Sprint(v), Label: fmt.Sprint(v)})
		}
	}

	return options, nil
}

func parseClassifier(raw map[string]any) *ClassifierSpec {
	if len(raw) == 0 {
		return nil
	}

	spec := &ClassifierSpec{Options: map[string]any{}}
	for key, value := range raw {
		switch key {
		case "strategy":
			spec.Strategy = strings.TrimSpace(fmt.Sprint(value))
		case "dataclass", "schema":
			spec.Schema = strings.TrimSpace(fmt.Sprint(value))
		default:
			spec.Options[key] = value
		}
	}

	return spec
}

// Lint reports follow-up keys that a classifier can never emit.
// outputs returns the known output space for a schema name.
func Lint(tree *QuestionTree, outputs func(schema string) ([]string, bool)) []string {
	var warnings []string
	for _, id := range tree.QuestionIDs() {
		q := tree.Questions[id]
		if q.Type != FreeTextClassified || q.Classifier == nil {
			continue
		}

		known, ok := outputs(q.Classifier.Schema)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("question %q: classifier schema %q is not registered, answers will use the fallback path", id, q.Classifier.Schema))
			continue
		}

		allowed := make(map[string]struct{}, len(known))
		for _, value := range known {
			allowed[value] = struct{}{}
		}

		keys := make([]string, 0, len(q.FollowUps))
		for key := range q.FollowUps {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if key == DefaultFollowUp {
				continue
			}
			if _, ok := allowed[key]; !ok {
				warnings = append(warnings, fmt.Sprintf("question %q: follow-up key %q is not a known %s output", id, key, q.Classifier.Schema))
			}
		}
	}

	return warnings
}
