package cmd

import (
	"mixflow/db"
	"mixflow/logger"
	"mixflow/model"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新数据库表结构",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close(gdb)
		return db.AutoMigrateModels(gdb, model.All()...)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
