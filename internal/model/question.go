package model

import "gorm.io/datatypes"

type QuestionType string

const (
	QuestionABCD      QuestionType = "ABCD"
	QuestionTrueFalse QuestionType = "TrueFalse"
	QuestionNumber    QuestionType = "Number"
)

// QuestionTypeOrder is the fixed iteration order used wherever types are walked.
var QuestionTypeOrder = []QuestionType{QuestionABCD, QuestionTrueFalse, QuestionNumber}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionABCD, QuestionTrueFalse, QuestionNumber:
		return true
	}
	return false
}

// swagger:model Question
type Question struct {
	BaseModel

	LessonID uint         `gorm:"index;not null" json:"lessonId"`
	Order    int          `gorm:"column:position;default:0" json:"order"`
	Type     QuestionType `gorm:"size:20;not null" json:"type"`
	Prompt   string       `gorm:"type:text" json:"prompt"`
	ImageURL string       `gorm:"size:255" json:"imageUrl,omitempty"`
	// Options holds option texts for ABCD and sub-statements for multi-part TrueFalse.
	Options []string `gorm:"serializer:json;type:text" json:"options"`
	// CorrectAnswer is a letter (ABCD), a bool or bool array (TrueFalse) or a string (Number).
	CorrectAnswer datatypes.JSON `json:"correctAnswer"`
	Points        float64        `json:"points"`
}

func (Question) TableName() string {
	return "questions"
}
