package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const lintedTree = `
version: 1
namespace: candidate
user_type: candidate
tree_id: linted
root_question_id: q1
questions:
  q1:
    text: "Favorite language?"
    type: free_text_classified
    classifier: {strategy: instructor_dataclass, dataclass: ProgrammingLanguagePreference}
    follow_ups: {python_dev: q2, default: q2}
  q2:
    text: "Why?"
    type: free_text
    end_of_tree: true
`

func newValidateCmd(strict bool) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "validate"}
	cmd.Flags().Bool("strict", strict, "")

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	return cmd, &out
}

func TestValidateBuiltinTrees(t *testing.T) {
	cmd, out := newValidateCmd(true)

	if err := validateTrees(cmd, nil); err != nil {
		t.Fatalf("builtin trees must validate strictly: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "candidate.programming_language") {
		t.Fatalf("expected builtin tree in output, got %q", out.String())
	}
}

func TestValidateReportsLintWarnings(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "linted.yaml"), []byte(lintedTree), 0o600); err != nil {
		t.Fatalf("write tree: %v", err)
	}

	cmd, out := newValidateCmd(false)
	if err := validateTrees(cmd, []string{dir}); err != nil {
		t.Fatalf("lint warnings are not errors by default: %v", err)
	}
	if !strings.Contains(out.String(), `follow-up key "python_dev"`) {
		t.Fatalf("expected lint warning, got %q", out.String())
	}

	strictCmd, _ := newValidateCmd(true)
	if err := validateTrees(strictCmd, []string{filepath.Join(dir, "linted.yaml")}); err == nil {
		t.Fatalf("expected strict mode to fail")
	}
}

func TestNewAIClientErrors(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := newAIClient(context.Background(), &AIConfig{Provider: "claude"}, zap.NewNop()); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
	if _, err := newAIClient(context.Background(), &AIConfig{Provider: "gemini"}, zap.NewNop()); err == nil {
		t.Fatalf("expected missing gemini key error")
	}
	if _, err := newAIClient(context.Background(), &AIConfig{Provider: "openai"}, zap.NewNop()); err == nil {
		t.Fatalf("expected missing openai key error")
	}
}
