package assessment

import (
	"errors"
	"fmt"
	"strings"

	"lesson_engine_backend/internal/model"
)

var ErrInvalidLesson = errors.New("invalid lesson")

// ValidateLesson rejects lesson definitions that the grader could only score
// with data-quality warnings. It is meant for authoring time; grading itself
// tolerates all of these.
func ValidateLesson(lesson *model.Lesson) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	cfg := lesson.Randomization
	if cfg.PoolSize < 0 {
		add("poolSize must not be negative")
	}
	for t, n := range cfg.TypeDistribution {
		if !t.Valid() {
			add("typeDistribution: unknown question type %q", t)
		}
		if n < 0 {
			add("typeDistribution[%s] must not be negative", t)
		}
	}
	if lesson.Policy.MaxAttempts < 0 {
		add("maxAttempts must not be negative")
	}
	if lesson.Policy.MaxAttempts == 0 && !lesson.Policy.UnlimitedAttempts {
		add("maxAttempts must be positive unless unlimitedAttempts is set")
	}
	if lesson.Policy.CooldownSeconds < 0 {
		add("cooldown must not be negative")
	}
	if lesson.TimeLimit.Enabled && lesson.TimeLimit.Minutes <= 0 {
		add("timeLimit.minutes must be positive when the time limit is enabled")
	}

	for i, q := range lesson.Questions {
		if err := validateQuestion(q); err != nil {
			add("question %d: %w", i+1, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidLesson, errors.Join(errs...))
}

func validateQuestion(q model.Question) error {
	if q.Points < 0 {
		return errors.New("points must not be negative")
	}
	switch q.Type {
	case model.QuestionABCD:
		if len(q.Options) < 2 {
			return errors.New("ABCD question needs at least two options")
		}
		if len(q.Options) > 26 {
			return errors.New("ABCD question supports at most 26 options")
		}
		key, ok := decodeString(q.CorrectAnswer)
		if !ok {
			return errors.New("ABCD correct answer must be a letter")
		}
		if _, ok := LetterIndex(key, len(q.Options)); !ok {
			return fmt.Errorf("correct answer %q is outside the %d options", key, len(q.Options))
		}
	case model.QuestionNumber:
		key, ok := decodeScalarText(q.CorrectAnswer)
		if !ok || strings.TrimSpace(key) == "" {
			return errors.New("numeric correct answer must be a non-empty string")
		}
	case model.QuestionTrueFalse:
		if len(q.Options) == 0 {
			if _, ok := decodeBool(q.CorrectAnswer); !ok {
				return errors.New("true/false correct answer must be a boolean")
			}
			return nil
		}
		key, ok := decodeBoolSlice(q.CorrectAnswer)
		if !ok {
			return errors.New("multi-part true/false correct answer must be a list of booleans")
		}
		if len(key) != len(q.Options) {
			return fmt.Errorf("correct answer has %d entries for %d statements", len(key), len(q.Options))
		}
		for i, b := range key {
			if b == nil {
				return fmt.Errorf("statement %d has no correct answer", i+1)
			}
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}
