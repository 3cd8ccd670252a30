package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"thought_engine/config"
	"thought_engine/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "thought_engine",
	Short: "个性化分析引擎：兴趣画像、分级分析与本地洞察库",
	Long: `thought_engine 根据用户的历史条目构建兴趣画像，按累计条目数解锁更深入的分析等级，
并把每次分析结果保存到按用户隔离的本地洞察库中。`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadFile(cfgFile)
		if err := logger.Init(cfg); err != nil {
			return fmt.Errorf("init logger failed: %w", err)
		}
		return nil
	},
}

// Execute 由 main.main 调用
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "配置文件路径")
}

// printJSON 以缩进格式输出到标准输出
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "    ")
	return encoder.Encode(v)
}
