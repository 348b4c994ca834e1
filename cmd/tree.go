package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talentflow/internal/classifier"
	"github.com/spigell/talentflow/internal/logger"
	"github.com/spigell/talentflow/internal/qna"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Work with question trees",
}

var treeValidateCmd = &cobra.Command{
	Use:   "validate [file or directory...]",
	Short: "Validate tree definitions without touching the graph",
	Long:  "Validate tree definitions without touching the graph. Without arguments the builtin trees are checked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateTrees(cmd, args)
	},
}

var treeLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the configured trees and persist them into the graph",
	Run: func(_ *cobra.Command, _ []string) {
		loadTrees()
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.AddCommand(treeValidateCmd, treeLoadCmd)

	treeValidateCmd.Flags().Bool("strict", false, "treat lint warnings as errors")
}

func validateTrees(cmd *cobra.Command, paths []string) error {
	var trees []*qna.QuestionTree

	if len(paths) == 0 {
		builtin, err := qna.LoadFS(qna.BuiltinTrees(), "builtin")
		if err != nil {
			return err
		}
		trees = builtin
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			loaded, err := qna.LoadDir(path)
			if err != nil {
				return err
			}
			trees = append(trees, loaded...)
			continue
		}

		tree, err := qna.LoadFile(path)
		if err != nil {
			return err
		}
		trees = append(trees, tree)
	}

	strict, _ := cmd.Flags().GetBool("strict")
	outputs := classifier.New(nil, nil).Outputs

	warnings := 0
	for _, tree := range trees {
		lint := qna.Lint(tree, outputs)
		warnings += len(lint)

		cmd.Printf("%s (v%d, %d questions): ok\n", tree.TreeID, tree.Version, len(tree.Questions))
		for _, w := range lint {
			cmd.Printf("  warning: %s\n", w)
		}
	}

	if strict && warnings > 0 {
		return fmt.Errorf("%d lint warnings", warnings)
	}

	return nil
}

func loadTrees() {
	ctx := context.Background()
	l := newLogger()

	deps, err := newAppDeps(ctx, l)
	if err != nil {
		l.Fatal("initializing", zap.Error(err))
	}
	defer deps.Close()

	// Upserts are idempotent, so a second pass after persist-on-start is harmless.
	if err := deps.qna.PersistTrees(ctx); err != nil {
		l.Fatal("persisting trees", zap.Error(err))
	}

	for _, tree := range deps.qna.Trees() {
		l.Info("tree persisted",
			zap.String(logger.FieldTreeID, tree.TreeID),
			zap.Int("questions", len(tree.Questions)),
			zap.String(logger.FieldBackend, deps.config.Graph.Backend),
		)
	}
}
