package service

import (
	"context"
	"errors"

	"lesson_engine_backend/internal/assessment"
	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/internal/util"

	"gorm.io/gorm"
)

type LessonStore interface {
	Create(ctx context.Context, lesson *model.Lesson) error
	FindByID(ctx context.Context, id uint) (*model.Lesson, error)
	List(ctx context.Context, creatorID uint) ([]model.Lesson, error)
}

type LessonService struct {
	LessonRepo LessonStore
}

func NewLessonService(lessonRepo LessonStore) *LessonService {
	return &LessonService{LessonRepo: lessonRepo}
}

// Create 校验题目与答案后保存课程
func (s *LessonService) Create(ctx context.Context, creatorID uint, lesson *model.Lesson) error {
	if err := assessment.ValidateLesson(lesson); err != nil {
		return err
	}
	lesson.CreatorID = creatorID
	for i := range lesson.Questions {
		lesson.Questions[i].ID = 0
		lesson.Questions[i].LessonID = 0
	}
	return s.LessonRepo.Create(ctx, lesson)
}

// LessonSummary 面向学生的课程信息，不含题目与答案
type LessonSummary struct {
	ID               uint                      `json:"id"`
	Title            string                    `json:"title"`
	Description      string                    `json:"description"`
	QuestionCount    int                       `json:"questionCount"`
	Policy           model.AttemptPolicy       `json:"policy"`
	TimeLimitMinutes int                       `json:"timeLimitMinutes,omitempty"`
	Randomization    model.RandomizationConfig `json:"randomization"`
}

func (s *LessonService) Get(ctx context.Context, id uint) (*LessonSummary, error) {
	lesson, err := s.LessonRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrLessonNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg := lesson.Randomization
	// 种子决定题目顺序，不下发给学生
	cfg.Seed = ""
	count := len(lesson.Questions)
	if cfg.EnableQuestionPool && cfg.PoolSize > 0 && cfg.PoolSize < count {
		count = cfg.PoolSize
	}
	return &LessonSummary{
		ID:               lesson.ID,
		Title:            lesson.Title,
		Description:      lesson.Description,
		QuestionCount:    count,
		Policy:           lesson.Policy,
		TimeLimitMinutes: lesson.TimeLimit.Minutes,
		Randomization:    cfg,
	}, nil
}

func (s *LessonService) List(ctx context.Context, creatorID uint) ([]model.Lesson, error) {
	return s.LessonRepo.List(ctx, creatorID)
}
