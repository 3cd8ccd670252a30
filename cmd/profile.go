package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile <userID>",
	Short: "查看或重建用户兴趣画像",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rebuild, _ := cmd.Flags().GetBool("rebuild")
		ctx := cmd.Context()

		rt, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		if rebuild {
			profile, err := rt.engine.BuildProfile(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(profile)
		}

		if _, err := rt.engine.RefreshIfStale(ctx, args[0]); err != nil {
			return err
		}
		profile, err := rt.engine.Profile(ctx, args[0])
		if err != nil {
			return err
		}
		if profile == nil {
			return fmt.Errorf("用户 %s 没有画像", args[0])
		}
		return printJSON(profile)
	},
}

var progressionCmd = &cobra.Command{
	Use:   "progression <userID>",
	Short: "查看分析等级进度",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		progression, err := rt.engine.Progression(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(progression.Status)
		return nil
	},
}

func init() {
	profileCmd.Flags().Bool("rebuild", false, "忽略缓存，强制用全部条目重建")
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(progressionCmd)
}
