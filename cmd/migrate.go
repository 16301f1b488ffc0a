package cmd

import (
	"fmt"

	"lesson_engine_backend/pkg/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "只执行数据库迁移，完成后退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.ForceMigrate = true
		cfg.MigrateOnly = true

		db, err := database.InitDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "数据库迁移完成")
		return nil
	},
}
