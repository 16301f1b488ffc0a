package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// AttemptSubmitted 在成绩写入后发布，供外部的能力评分服务消费
	AttemptSubmitted EventType = "attempt.submitted"
	// SessionSuperseded 在新的登录顶替旧会话时发布
	SessionSuperseded EventType = "session.superseded"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

func newBase(t EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

type AttemptSubmittedEvent struct {
	BaseEvent
	AttemptID     uint    `json:"attempt_id"`
	StudentID     uint    `json:"student_id"`
	LessonID      uint    `json:"lesson_id"`
	AttemptNumber int     `json:"attempt_number"`
	Score         float64 `json:"score"`
	TotalPoints   float64 `json:"total_points"`
	SubmittedAt   int64   `json:"submitted_at"`
}

func NewAttemptSubmittedEvent(attemptID, studentID, lessonID uint, attemptNumber int, score, total float64, submittedAt time.Time) *AttemptSubmittedEvent {
	return &AttemptSubmittedEvent{
		BaseEvent:     newBase(AttemptSubmitted),
		AttemptID:     attemptID,
		StudentID:     studentID,
		LessonID:      lessonID,
		AttemptNumber: attemptNumber,
		Score:         score,
		TotalPoints:   total,
		SubmittedAt:   submittedAt.Unix(),
	}
}

type SessionSupersededEvent struct {
	BaseEvent
	StudentID    uint   `json:"student_id"`
	OldSessionID string `json:"old_session_id"`
	NewSessionID string `json:"new_session_id"`
	DeviceID     string `json:"device_id,omitempty"`
}

func NewSessionSupersededEvent(studentID uint, oldSessionID, newSessionID, deviceID string) *SessionSupersededEvent {
	return &SessionSupersededEvent{
		BaseEvent:    newBase(SessionSuperseded),
		StudentID:    studentID,
		OldSessionID: oldSessionID,
		NewSessionID: newSessionID,
		DeviceID:     deviceID,
	}
}

func toJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
