package cmd

import (
	"lesson_engine_backend/internal/app"
	"lesson_engine_backend/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lesson-engine",
	Short: "课程测验引擎后端服务",
	Long:  "Lesson assessment backend: question randomization, grading, attempt limits and single-session login.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "configs", "配置文件 config.yaml 所在目录")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(dir)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("migrate"); f != nil {
		cfg.ForceMigrate, _ = cmd.Flags().GetBool("migrate")
	}

	application := app.NewApp(cfg)
	application.Run()
	return nil
}
