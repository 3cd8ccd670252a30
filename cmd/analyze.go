package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"thought_engine/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <userID> <entryID>",
	Short: "对一条条目执行分级分析并保存结果",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		insight, err := rt.engine.Analyze(cmd.Context(), args[0], args[1])
		if err != nil {
			if models.IsRetryable(err) {
				return fmt.Errorf("%w（可以稍后重试）", err)
			}
			return err
		}
		return printJSON(insight)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
