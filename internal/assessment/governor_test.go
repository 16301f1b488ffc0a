package assessment

import (
	"context"
	"errors"
	"testing"
	"time"

	"lesson_engine_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func attemptsAt(ago ...time.Duration) []model.AttemptRecord {
	out := make([]model.AttemptRecord, len(ago))
	for i, d := range ago {
		out[i] = model.AttemptRecord{ID: uint(i + 1), AttemptNumber: i + 1, SubmittedAt: fixedNow.Add(-d)}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		policy    model.AttemptPolicy
		prior     []model.AttemptRecord
		allowed   bool
		reason    DenialReason
		state     State
		remaining int64
		number    int
	}{
		{
			name:    "first attempt",
			policy:  model.AttemptPolicy{MaxAttempts: 3},
			allowed: true,
			state:   StateUnattempted,
			number:  1,
		},
		{
			name:    "under the cap",
			policy:  model.AttemptPolicy{MaxAttempts: 3},
			prior:   attemptsAt(2*time.Hour, time.Hour),
			allowed: true,
			state:   StateEligible,
			number:  3,
		},
		{
			name:   "cap reached",
			policy: model.AttemptPolicy{MaxAttempts: 3},
			prior:  attemptsAt(3*time.Hour, 2*time.Hour, time.Hour),
			reason: ReasonMaxAttempts,
			state:  StateExhausted,
		},
		{
			name:    "unlimited ignores cap",
			policy:  model.AttemptPolicy{MaxAttempts: 1, UnlimitedAttempts: true},
			prior:   attemptsAt(3*time.Hour, 2*time.Hour),
			allowed: true,
			state:   StateEligible,
			number:  3,
		},
		{
			name:    "zero max means no cap",
			policy:  model.AttemptPolicy{},
			prior:   attemptsAt(3*time.Hour, 2*time.Hour, time.Hour),
			allowed: true,
			state:   StateEligible,
			number:  4,
		},
		{
			name:      "cooling down",
			policy:    model.AttemptPolicy{CooldownSeconds: 1800},
			prior:     attemptsAt(time.Hour, 10*time.Minute),
			reason:    ReasonCooldown,
			state:     StateCoolingDown,
			remaining: 1200,
		},
		{
			name:      "cooldown measured from latest submission regardless of order",
			policy:    model.AttemptPolicy{CooldownSeconds: 1800},
			prior:     attemptsAt(10*time.Minute, time.Hour),
			reason:    ReasonCooldown,
			state:     StateCoolingDown,
			remaining: 1200,
		},
		{
			name:      "partial seconds round up",
			policy:    model.AttemptPolicy{CooldownSeconds: 60},
			prior:     attemptsAt(59*time.Second + 500*time.Millisecond),
			reason:    ReasonCooldown,
			state:     StateCoolingDown,
			remaining: 1,
		},
		{
			name:    "cooldown elapsed exactly",
			policy:  model.AttemptPolicy{CooldownSeconds: 60},
			prior:   attemptsAt(time.Minute),
			allowed: true,
			state:   StateEligible,
			number:  2,
		},
		{
			name:   "cap wins over cooldown",
			policy: model.AttemptPolicy{MaxAttempts: 1, CooldownSeconds: 3600},
			prior:  attemptsAt(time.Minute),
			reason: ReasonMaxAttempts,
			state:  StateExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.policy, tt.prior, fixedNow)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.state, d.State)
			assert.Equal(t, tt.remaining, d.RemainingSeconds)
			assert.Equal(t, tt.number, d.AttemptNumber)
			assert.Equal(t, len(tt.prior), d.Attempts)
		})
	}
}

func TestEvaluate_CooldownRemainingDuration(t *testing.T) {
	d := Evaluate(model.AttemptPolicy{CooldownSeconds: 1800}, attemptsAt(10*time.Minute), fixedNow)
	assert.Equal(t, 20*time.Minute, d.RemainingTime)
	assert.Len(t, d.PreviousAttempts, 1)
}

func TestEvaluate_FutureSubmissionTreatedAsJustNow(t *testing.T) {
	prior := []model.AttemptRecord{{SubmittedAt: fixedNow.Add(time.Minute)}}
	d := Evaluate(model.AttemptPolicy{CooldownSeconds: 300}, prior, fixedNow)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(300), d.RemainingSeconds)
}

type stubHistory struct {
	records []model.AttemptRecord
	err     error
}

func (s stubHistory) ListByStudentAndLesson(_ context.Context, _, _ uint) ([]model.AttemptRecord, error) {
	return s.records, s.err
}

func TestGovernor_Check(t *testing.T) {
	lesson := &model.Lesson{Policy: model.AttemptPolicy{MaxAttempts: 2}}
	lesson.ID = 9

	g := NewGovernor(stubHistory{records: attemptsAt(2*time.Hour, time.Hour)}, nil).
		WithClock(func() time.Time { return fixedNow })
	d := g.Check(context.Background(), lesson, 1)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMaxAttempts, d.Reason)
	assert.False(t, d.FailedOpen)
}

func TestGovernor_FailsOpen(t *testing.T) {
	lesson := &model.Lesson{Policy: model.AttemptPolicy{MaxAttempts: 1}}
	g := NewGovernor(stubHistory{err: errors.New("connection refused")}, nil)

	d := g.Check(context.Background(), lesson, 1)

	require.True(t, d.Allowed)
	assert.True(t, d.FailedOpen)
	assert.Empty(t, d.Reason)
}
