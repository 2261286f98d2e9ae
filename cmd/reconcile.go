package cmd

import (
	"encoding/json"
	"os"
	"time"

	"mixflow/logger"

	"github.com/spf13/cobra"
)

var reconcilePrune bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "检查曲目记录与存储文件的一致性",
	Long: `列出音频文件已丢失的曲目以及没有任何曲目引用的存储文件。
使用 --prune 删除这些曲目，并清理超过一小时的孤立文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.trackService().Reconcile(cmd.Context(), reconcilePrune, time.Now())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcilePrune, "prune", false, "删除丢失音频的曲目和孤立文件")
	rootCmd.AddCommand(reconcileCmd)
}
