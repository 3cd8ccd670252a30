package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"thought_engine/models"
	"thought_engine/repository"
	"thought_engine/utils"
)

// 搜索只读取本地洞察库，不需要连接 MySQL
var searchCmd = &cobra.Command{
	Use:   "search <userID> [term]",
	Short: "搜索用户的本地洞察库",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		starred, _ := cmd.Flags().GetBool("starred")

		stores := repository.NewInsightStores(cfg.Store.Dir)
		defer stores.Close()

		store, err := stores.For(args[0])
		if err != nil {
			return err
		}

		var insights []models.StoredInsight
		switch {
		case len(args) == 2:
			insights, err = store.Search(cmd.Context(), args[1])
		case starred:
			insights, err = store.Query(cmd.Context(), models.InsightFilter{Starred: &starred})
		default:
			insights, err = store.Query(cmd.Context(), models.InsightFilter{})
		}
		if err != nil {
			return err
		}
		if starred && len(args) == 2 {
			insights = onlyStarred(insights)
		}

		if asJSON {
			return printJSON(insights)
		}
		if len(insights) == 0 {
			fmt.Println("没有找到洞察")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSTAR\tTHEMES\tSOURCE\t")
		for _, ins := range insights {
			star := ""
			if ins.Starred {
				star = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
				ins.ID,
				ins.CreatedAt.Format("2006-01-02 15:04"),
				star,
				strings.Join(ins.Themes, ","),
				utils.Preview(strings.Join(strings.Fields(ins.SourceText), " "), 48))
		}
		return w.Flush()
	},
}

func onlyStarred(insights []models.StoredInsight) []models.StoredInsight {
	out := insights[:0]
	for _, ins := range insights {
		if ins.Starred {
			out = append(out, ins)
		}
	}
	return out
}

func init() {
	searchCmd.Flags().Bool("json", false, "以 JSON 输出")
	searchCmd.Flags().Bool("starred", false, "只显示已收藏")
	rootCmd.AddCommand(searchCmd)
}
