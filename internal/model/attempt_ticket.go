package model

import "time"

// AttemptTicket remembers which questions were presented when an attempt started.
type AttemptTicket struct {
	ID            string    `json:"id"`
	StudentID     uint      `json:"studentId"`
	LessonID      uint      `json:"lessonId"`
	AttemptNumber int       `json:"attemptNumber"`
	QuestionIDs   []uint    `json:"questionIds"`
	Seed          string    `json:"seed,omitempty"`
	IssuedAt      time.Time `json:"issuedAt"`
}
