package util

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrLessonNotFound     = errors.New("lesson not found")
	ErrSessionTerminated  = errors.New("session terminated by a newer login")
	ErrAttemptDenied      = errors.New("attempt not permitted")
	ErrEmptySubmission    = errors.New("submission contains no answers")
	ErrNoActiveAttempt    = errors.New("no active attempt for this lesson, start an attempt first")
	ErrInvalidID          = errors.New("invalid id")
)
