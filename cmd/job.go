package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talentflow/internal/qna"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage job requirements used for scoring",
}

var jobRequireCmd = &cobra.Command{
	Use:   "require <job-id>",
	Short: "Link a job to a concept it requires",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireSkill(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobRequireCmd)

	jobRequireCmd.Flags().String("concept-type", "", "concept type, usually the trait attribute (e.g. programming_language)")
	jobRequireCmd.Flags().String("concept-key", "", "concept key (e.g. python)")
	jobRequireCmd.Flags().String("attribute", "", "score breakdown attribute (default is the concept type)")
	jobRequireCmd.Flags().Float64("weight", 1, "requirement weight")
	jobRequireCmd.Flags().Bool("required", false, "mark the requirement as mandatory")

	jobRequireCmd.MarkFlagRequired("concept-type")
	jobRequireCmd.MarkFlagRequired("concept-key")
}

func requireSkill(cmd *cobra.Command, jobID string) {
	ctx := context.Background()
	l := newLogger()

	deps, err := newAppDeps(ctx, l)
	if err != nil {
		l.Fatal("initializing", zap.Error(err))
	}
	defer deps.Close()

	edge := qna.RequiresSkillEdge{JobID: jobID}
	edge.ConceptType, _ = cmd.Flags().GetString("concept-type")
	edge.ConceptKey, _ = cmd.Flags().GetString("concept-key")
	edge.Attribute, _ = cmd.Flags().GetString("attribute")
	edge.Weight, _ = cmd.Flags().GetFloat64("weight")
	edge.Required, _ = cmd.Flags().GetBool("required")

	if err := deps.qna.UpsertRequirement(ctx, edge); err != nil {
		l.Fatal("saving requirement", zap.Error(err))
	}

	l.Info("requirement saved",
		zap.String("job_id", jobID),
		zap.String("concept_type", edge.ConceptType),
		zap.String("concept_key", edge.ConceptKey),
		zap.Float64("weight", edge.Weight),
	)
}
