package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scoreCmd = &cobra.Command{
	Use:   "score <job-id> <user-id> [user-id...]",
	Short: "Score users against a job's requirements",
	Long:  "Score users against a job's requirements. With several users the results are ranked by total.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		score(cmd, args[0], args[1:])
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func score(cmd *cobra.Command, jobID string, userIDs []string) {
	ctx := context.Background()
	l := newLogger()

	deps, err := newAppDeps(ctx, l)
	if err != nil {
		l.Fatal("initializing", zap.Error(err))
	}
	defer deps.Close()

	if len(userIDs) == 1 {
		result, err := deps.scoring.Score(ctx, jobID, userIDs[0])
		if err != nil {
			l.Fatal("scoring", zap.Error(err))
		}
		printJSON(cmd, result)
		return
	}

	results, err := deps.scoring.Rank(ctx, jobID, userIDs)
	if err != nil {
		l.Fatal("ranking", zap.Error(err))
	}
	printJSON(cmd, results)
}
