package model

import "time"

// Session is the record kept in the external session store, keyed by ID.
type Session struct {
	ID        string    `json:"id"`
	StudentID uint      `json:"studentId"`
	DeviceID  string    `json:"deviceId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
