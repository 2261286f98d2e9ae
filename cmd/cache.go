package cmd

import (
	"errors"
	"fmt"

	"mixflow/cache"
	"mixflow/logger"

	"github.com/spf13/cobra"
)

var cachePurge bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Redis文件缓存检查",
	Long:  `测试Redis连接，使用 --purge 清空文件元数据缓存。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		addr := cfg.RedisAddr()
		if addr == "" {
			return errors.New("REDIS_HOST is not set, the stat cache is disabled")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis配置: %s, DB: %d\n", addr, cfg.RedisDB)

		client, err := cache.ConnectRedis(cmd.Context(), cache.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Fprintln(out, "Redis连接成功！")

		if cachePurge {
			n, err := cache.NewStatCache(client, cfg.StatCacheTTL).Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge stat cache: %w", err)
			}
			fmt.Fprintf(out, "已删除 %d 条缓存\n", n)
		}
		return nil
	},
}

func init() {
	cacheCmd.Flags().BoolVar(&cachePurge, "purge", false, "清空文件元数据缓存")
	rootCmd.AddCommand(cacheCmd)
}
