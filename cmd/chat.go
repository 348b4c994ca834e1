package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talentflow/internal/dialogue"
	"github.com/spigell/talentflow/internal/qna"
)

const (
	commandQuit   = "/quit"
	commandTraits = "/traits"
	commandState  = "/state"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the dialogue engine from the terminal",
	Long: "Talk to the dialogue engine from the terminal.\n" +
		"Type " + commandTraits + " to see stored traits, " + commandState + " to dump the chat state and " + commandQuit + " to leave.",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("user-id", "u", "local-user", "user id the answers are recorded for")
	chatCmd.Flags().String("user-type", dialogue.UserTypeCandidate, "candidate or job_poster")
	chatCmd.Flags().StringP("tree", "t", "", "start this question tree right away")
}

func chat(cmd *cobra.Command) {
	ctx := context.Background()
	logger := newLogger()

	deps, err := newAppDeps(ctx, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}
	defer deps.Close()

	userID, _ := cmd.Flags().GetString("user-id")
	userType, _ := cmd.Flags().GetString("user-type")
	treeID, _ := cmd.Flags().GetString("tree")

	if treeID != "" {
		if _, ok := deps.qna.Tree(treeID); !ok {
			logger.Fatal("unknown tree", zap.String("tree_id", treeID))
		}
	}

	state := &dialogue.ChatState{
		UserID:    userID,
		UserType:  userType,
		QnaTreeID: treeID,
		QnaMode:   treeID != "",
	}

	for {
		text, err := readMessage(deps.qna, state)
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return
		}
		if err != nil {
			logger.Fatal("reading input", zap.Error(err))
		}

		switch strings.TrimSpace(text) {
		case "":
			continue
		case commandQuit:
			return
		case commandTraits:
			traits, err := deps.qna.UserTraits(ctx, userID)
			if err != nil {
				logger.Error("reading traits", zap.Error(err))
				continue
			}
			printJSON(cmd, traits)
			continue
		case commandState:
			printJSON(cmd, state)
			continue
		}

		state.Messages = append(state.Messages, dialogue.Message{Role: dialogue.RoleUser, Content: text})
		before := len(state.Messages)

		state, err = deps.dialogue.Handle(ctx, state)
		if err != nil {
			logger.Error("handling message", zap.Error(err))
			continue
		}

		if len(state.Messages) > before {
			cmd.Printf("assistant: %s\n", state.LastAssistantMessage())
		}
		if !state.QnaMode && state.QnaTreeID != "" {
			logger.Debug("q&a finished", zap.String("tree_id", state.QnaTreeID))
		}
	}
}

// readMessage offers the options of a pending single_choice question as a list.
func readMessage(svc *qna.Service, state *dialogue.ChatState) (string, error) {
	if q := pendingQuestion(svc, state); q != nil && q.Type == qna.SingleChoice && len(q.Options) > 0 {
		labels := make([]string, 0, len(q.Options))
		for _, option := range q.Options {
			labels = append(labels, option.Label)
		}

		selector := promptui.Select{Label: q.Text, Items: labels}
		idx, _, err := selector.Run()
		if err != nil {
			return "", err
		}
		return q.Options[idx].Value, nil
	}

	prompt := promptui.Prompt{Label: "you"}
	return prompt.Run()
}

func pendingQuestion(svc *qna.Service, state *dialogue.ChatState) *qna.Question {
	if !state.QnaMode || state.CurrentQuestionID == "" {
		return nil
	}
	tree, ok := svc.Tree(state.QnaTreeID)
	if !ok {
		return nil
	}
	q, _ := tree.Question(state.CurrentQuestionID)
	return q
}

func printJSON(cmd *cobra.Command, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		cmd.PrintErrf("encoding output: %v\n", err)
		return
	}
	cmd.Println(string(out))
}
