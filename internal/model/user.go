package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name      string     `gorm:"size:100;not null" json:"name"`
	Email     string     `gorm:"size:100;unique;not null" json:"email"`
	Password  string     `gorm:"size:100;not null" json:"-"`
	Role      UserRole   `gorm:"size:20;default:'student'" json:"role"`
	Disabled  bool       `gorm:"default:false" json:"disabled"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`

	// CurrentSessionID is the only session considered live for this user.
	CurrentSessionID string `gorm:"size:36;index" json:"-"`
	DeviceID         string `gorm:"size:128" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// StudentIdentity is the session-exclusivity view of a user record.
type StudentIdentity struct {
	StudentID        uint   `json:"studentId"`
	CurrentSessionID string `json:"currentSessionId"`
	DeviceID         string `json:"deviceId"`
}

func (u *User) Identity() StudentIdentity {
	return StudentIdentity{
		StudentID:        u.ID,
		CurrentSessionID: u.CurrentSessionID,
		DeviceID:         u.DeviceID,
	}
}
