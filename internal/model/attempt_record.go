package model

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionOutcome is the graded result of one question within an attempt.
type QuestionOutcome struct {
	QuestionID    uint         `json:"questionId"`
	Type          QuestionType `json:"type"`
	UserAnswer    any          `json:"userAnswer"`
	CorrectAnswer any          `json:"correctAnswer"`
	IsCorrect     bool         `json:"isCorrect"`
	Points        float64      `json:"points"`
	EarnedPoints  float64      `json:"earnedPoints"`
}

// AttemptRecord is written once per submission and never updated.
//
// swagger:model AttemptRecord
type AttemptRecord struct {
	ID               uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID        uint              `gorm:"index:idx_attempt_student_lesson;not null" json:"studentId"`
	LessonID         uint              `gorm:"index:idx_attempt_student_lesson;not null" json:"lessonId"`
	AttemptNumber    int               `json:"attemptNumber"`
	SubmittedAt      time.Time         `gorm:"index;not null" json:"submittedAt"`
	Answers          []QuestionOutcome `gorm:"serializer:json;type:text" json:"perQuestionAnswers"`
	Submission       datatypes.JSON    `json:"-"`
	Score            float64           `json:"score"`
	TotalPoints      float64           `json:"totalPoints"`
	TimeTakenSeconds int               `json:"timeTakenSeconds"`
	WarningCount     int               `gorm:"default:0" json:"warningCount"`
	CreatedAt        time.Time         `json:"createdAt"`
}

func (AttemptRecord) TableName() string {
	return "attempt_records"
}
