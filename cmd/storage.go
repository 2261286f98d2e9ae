package cmd

import (
	"fmt"

	"mixflow/logger"
	"mixflow/storage"

	"github.com/spf13/cobra"
)

var (
	storageKind  string
	storageStats bool
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "查看上传文件",
	Long:  `列出本地目录或MinIO存储桶中的音频和封面文件，或使用 --stats 只显示统计信息。`,
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

		kinds := storage.Kinds
		if storageKind != "" {
			k := storage.Kind(storageKind)
			if !k.Valid() {
				return fmt.Errorf("unknown kind %q, want audio or artwork", storageKind)
			}
			kinds = []storage.Kind{k}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "存储后端: %s\n", cfg.StorageBackend)
		for _, kind := range kinds {
			var count, total int64
			err := a.store.Walk(cmd.Context(), kind, func(info storage.Info) error {
				count++
				total += info.Size
				if !storageStats {
					fmt.Fprintf(out, "%-8s %12d  %s  %s\n", kind, info.Size,
						info.ModTime.Format("2006-01-02 15:04:05"), storage.URL(kind, info.Name))
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("walk %s: %w", kind, err)
			}
			fmt.Fprintf(out, "%s: %d 个文件, %s\n", kind, count, formatBytes(total))
		}
		return nil
	},
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	storageCmd.Flags().StringVarP(&storageKind, "kind", "k", "", "只显示 audio 或 artwork")
	storageCmd.Flags().BoolVarP(&storageStats, "stats", "s", false, "只显示统计信息")
	rootCmd.AddCommand(storageCmd)
}
