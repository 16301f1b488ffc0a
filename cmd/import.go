package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/internal/repository"
	"lesson_engine_backend/internal/service"
	"lesson_engine_backend/pkg/database"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

// lessonFile 是课程 YAML 文件的结构，题目按文件中的顺序编号
type lessonFile struct {
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	Randomization struct {
		ShuffleQuestions   bool                       `yaml:"shuffle_questions"`
		ShuffleAnswers     bool                       `yaml:"shuffle_answers"`
		EnableQuestionPool bool                       `yaml:"enable_question_pool"`
		PoolSize           int                        `yaml:"pool_size"`
		TypeDistribution   map[model.QuestionType]int `yaml:"type_distribution"`
		Seed               string                     `yaml:"seed"`
	} `yaml:"randomization"`
	Policy struct {
		MaxAttempts       int   `yaml:"max_attempts"`
		UnlimitedAttempts bool  `yaml:"unlimited_attempts"`
		CooldownSeconds   int64 `yaml:"cooldown_seconds"`
	} `yaml:"policy"`
	TimeLimitMinutes int `yaml:"time_limit_minutes"`
	Questions        []struct {
		Type          model.QuestionType `yaml:"type"`
		Prompt        string             `yaml:"prompt"`
		ImageURL      string             `yaml:"image_url"`
		Options       []string           `yaml:"options"`
		CorrectAnswer any                `yaml:"correct_answer"`
		Points        float64            `yaml:"points"`
	} `yaml:"questions"`
}

func parseLessonFile(data []byte) (*model.Lesson, error) {
	var f lessonFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lesson file: %w", err)
	}

	lesson := &model.Lesson{
		Title:       f.Title,
		Description: f.Description,
		Randomization: model.RandomizationConfig{
			ShuffleQuestions:   f.Randomization.ShuffleQuestions,
			ShuffleAnswers:     f.Randomization.ShuffleAnswers,
			EnableQuestionPool: f.Randomization.EnableQuestionPool,
			PoolSize:           f.Randomization.PoolSize,
			TypeDistribution:   f.Randomization.TypeDistribution,
			Seed:               f.Randomization.Seed,
		},
		Policy: model.AttemptPolicy{
			MaxAttempts:       f.Policy.MaxAttempts,
			UnlimitedAttempts: f.Policy.UnlimitedAttempts,
			CooldownSeconds:   f.Policy.CooldownSeconds,
		},
		TimeLimit: model.TimeLimit{
			Enabled: f.TimeLimitMinutes > 0,
			Minutes: f.TimeLimitMinutes,
		},
	}
	for i, q := range f.Questions {
		key, err := json.Marshal(q.CorrectAnswer)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		lesson.Questions = append(lesson.Questions, model.Question{
			Order:         i,
			Type:          q.Type,
			Prompt:        q.Prompt,
			ImageURL:      q.ImageURL,
			Options:       q.Options,
			CorrectAnswer: datatypes.JSON(key),
			Points:        q.Points,
		})
	}
	return lesson, nil
}

var importCmd = &cobra.Command{
	Use:   "import <lesson.yaml>",
	Short: "从 YAML 文件导入课程",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		lesson, err := parseLessonFile(data)
		if err != nil {
			return err
		}
		creator, _ := cmd.Flags().GetUint("creator")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := database.InitDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		svc := service.NewLessonService(repository.NewLessonRepository(db))
		if err := svc.Create(cmd.Context(), creator, lesson); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "课程已导入: id=%d, 题目数=%d\n", lesson.ID, len(lesson.Questions))
		return nil
	},
}

func init() {
	importCmd.Flags().Uint("creator", 0, "课程创建者的用户ID")
	rootCmd.AddCommand(importCmd)
}
