package repository

import (
	"context"

	"lesson_engine_backend/internal/model"

	"gorm.io/gorm"
)

// AttemptRepository 只追加作答记录，不提供更新
type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(ctx context.Context, record *model.AttemptRecord) error {
	return r.DB.WithContext(ctx).Create(record).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id uint) (*model.AttemptRecord, error) {
	var record model.AttemptRecord
	err := r.DB.WithContext(ctx).First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *AttemptRepository) ListByStudentAndLesson(ctx context.Context, studentID, lessonID uint) ([]model.AttemptRecord, error) {
	var records []model.AttemptRecord
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND lesson_id = ?", studentID, lessonID).
		Order("submitted_at ASC").
		Order("id ASC").
		Find(&records).Error
	return records, err
}

func (r *AttemptRepository) CountByStudentAndLesson(ctx context.Context, studentID, lessonID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.AttemptRecord{}).
		Where("student_id = ? AND lesson_id = ?", studentID, lessonID).
		Count(&count).Error
	return count, err
}
