package repository

import (
	"context"

	"lesson_engine_backend/internal/model"

	"gorm.io/gorm"
)

type LessonRepository struct {
	DB *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: db}
}

// Create 在一个事务中写入课程及其题目
func (r *LessonRepository) Create(ctx context.Context, lesson *model.Lesson) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(lesson).Error
	})
}

// FindByID 读取课程并按编写顺序加载题目
func (r *LessonRepository) FindByID(ctx context.Context, id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("id ASC")
		}).
		First(&lesson, id).Error
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *LessonRepository) List(ctx context.Context, creatorID uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	q := r.DB.WithContext(ctx).Order("id DESC")
	if creatorID != 0 {
		q = q.Where("creator_id = ?", creatorID)
	}
	err := q.Find(&lessons).Error
	return lessons, err
}
