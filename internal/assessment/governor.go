package assessment

import (
	"context"
	"time"

	"lesson_engine_backend/internal/model"

	"go.uber.org/zap"
)

// State is where a (student, lesson) pair sits in the attempt lifecycle.
type State string

const (
	StateUnattempted State = "unattempted"
	StateEligible    State = "eligible"
	StateCoolingDown State = "cooling_down"
	StateExhausted   State = "exhausted"
)

type DenialReason string

const (
	ReasonMaxAttempts    DenialReason = "maxAttempts"
	ReasonCooldown       DenialReason = "cooldown"
	ReasonAuthentication DenialReason = "authentication"
)

type Decision struct {
	Allowed          bool                  `json:"allowed"`
	Reason           DenialReason          `json:"reason,omitempty"`
	State            State                 `json:"state"`
	AttemptNumber    int                   `json:"attemptNumber,omitempty"`
	Attempts         int                   `json:"attempts"`
	MaxAttempts      int                   `json:"maxAttempts,omitempty"`
	RemainingTime    time.Duration         `json:"-"`
	RemainingSeconds int64                 `json:"remainingSeconds,omitempty"`
	PreviousAttempts []model.AttemptRecord `json:"previousAttempts,omitempty"`
	// FailedOpen is set when history could not be read and the attempt was allowed anyway.
	FailedOpen bool `json:"failedOpen,omitempty"`
}

// Evaluate decides whether another attempt may start given the prior ones.
// A MaxAttempts of zero or less means no cap. ValidateLesson rejects that
// combination at authoring time, so only lessons stored before it reach here.
func Evaluate(policy model.AttemptPolicy, prior []model.AttemptRecord, now time.Time) Decision {
	count := len(prior)

	if !policy.UnlimitedAttempts && policy.MaxAttempts > 0 && count >= policy.MaxAttempts {
		return Decision{
			Reason:      ReasonMaxAttempts,
			State:       StateExhausted,
			Attempts:    count,
			MaxAttempts: policy.MaxAttempts,
		}
	}

	if count > 0 {
		elapsed := now.Sub(lastSubmitted(prior))
		if elapsed < 0 {
			elapsed = 0
		}
		if cooldown := policy.Cooldown(); elapsed < cooldown {
			remaining := cooldown - elapsed
			return Decision{
				Reason:           ReasonCooldown,
				State:            StateCoolingDown,
				Attempts:         count,
				MaxAttempts:      policy.MaxAttempts,
				RemainingTime:    remaining,
				RemainingSeconds: int64((remaining + time.Second - 1) / time.Second),
				PreviousAttempts: prior,
			}
		}
	}

	state := StateEligible
	if count == 0 {
		state = StateUnattempted
	}
	return Decision{
		Allowed:          true,
		State:            state,
		AttemptNumber:    count + 1,
		Attempts:         count,
		MaxAttempts:      policy.MaxAttempts,
		PreviousAttempts: prior,
	}
}

func lastSubmitted(prior []model.AttemptRecord) time.Time {
	var last time.Time
	for _, a := range prior {
		if a.SubmittedAt.After(last) {
			last = a.SubmittedAt
		}
	}
	return last
}

// AttemptHistory supplies the prior attempts of a student on a lesson.
type AttemptHistory interface {
	ListByStudentAndLesson(ctx context.Context, studentID, lessonID uint) ([]model.AttemptRecord, error)
}

// Governor wraps Evaluate with a history lookup.
type Governor struct {
	history AttemptHistory
	log     *zap.Logger
	now     func() time.Time
}

func NewGovernor(history AttemptHistory, log *zap.Logger) *Governor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Governor{history: history, log: log, now: time.Now}
}

// WithClock replaces the wall clock, mainly for tests.
func (g *Governor) WithClock(now func() time.Time) *Governor {
	g.now = now
	return g
}

// Check fails open: if the history cannot be read the student is let in.
func (g *Governor) Check(ctx context.Context, lesson *model.Lesson, studentID uint) Decision {
	prior, err := g.history.ListByStudentAndLesson(ctx, studentID, lesson.ID)
	if err != nil {
		g.log.Warn("attempt history unavailable, allowing attempt",
			zap.Uint("student_id", studentID),
			zap.Uint("lesson_id", lesson.ID),
			zap.Error(err))
		return Decision{Allowed: true, State: StateEligible, FailedOpen: true}
	}
	return Evaluate(lesson.Policy, prior, g.now())
}
