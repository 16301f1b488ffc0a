package model

import (
	"time"
)

// RandomizationConfig controls how a lesson's question set is drawn and ordered.
type RandomizationConfig struct {
	ShuffleQuestions   bool                 `json:"shuffleQuestions"`
	ShuffleAnswers     bool                 `json:"shuffleAnswers"`
	EnableQuestionPool bool                 `json:"enableQuestionPool"`
	PoolSize           int                  `json:"poolSize"`
	TypeDistribution   map[QuestionType]int `json:"typeDistribution,omitempty"`
	Seed               string               `json:"seed,omitempty"`
}

type AttemptPolicy struct {
	MaxAttempts       int   `gorm:"default:0" json:"maxAttempts"`
	UnlimitedAttempts bool  `gorm:"default:false" json:"unlimitedAttempts"`
	CooldownSeconds   int64 `gorm:"default:0" json:"cooldownSeconds"`
}

func (p AttemptPolicy) Cooldown() time.Duration {
	return time.Duration(p.CooldownSeconds) * time.Second
}

type TimeLimit struct {
	Enabled bool `gorm:"default:false" json:"enabled"`
	Minutes int  `gorm:"default:0" json:"minutes"`
}

func (t TimeLimit) Duration() time.Duration {
	if !t.Enabled || t.Minutes <= 0 {
		return 0
	}
	return time.Duration(t.Minutes) * time.Minute
}

// swagger:model Lesson
type Lesson struct {
	BaseModel

	CreatorID     uint                `gorm:"index" json:"creatorId"`
	Title         string              `gorm:"size:255;not null" json:"title"`
	Description   string              `gorm:"type:text" json:"description"`
	Randomization RandomizationConfig `gorm:"serializer:json;type:text" json:"randomization"`
	Policy        AttemptPolicy       `gorm:"embedded;embeddedPrefix:policy_" json:"policy"`
	TimeLimit     TimeLimit           `gorm:"embedded;embeddedPrefix:time_limit_" json:"timeLimit"`
	Questions     []Question          `gorm:"foreignKey:LessonID" json:"questions,omitempty"`
}

func (Lesson) TableName() string {
	return "lessons"
}
