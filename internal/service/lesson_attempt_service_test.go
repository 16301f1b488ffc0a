package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lesson_engine_backend/internal/assessment"
	"lesson_engine_backend/internal/config"
	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/internal/repository"
	"lesson_engine_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var clock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeLessons map[uint]*model.Lesson

func (f fakeLessons) FindByID(_ context.Context, id uint) (*model.Lesson, error) {
	l, ok := f[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return l, nil
}

type memAttempts struct {
	mu        sync.Mutex
	records   []model.AttemptRecord
	listErr   error
	createErr error
}

func (m *memAttempts) Create(_ context.Context, r *model.AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	r.ID = uint(len(m.records) + 1)
	m.records = append(m.records, *r)
	return nil
}

func (m *memAttempts) ListByStudentAndLesson(_ context.Context, studentID, lessonID uint) ([]model.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.AttemptRecord
	for _, r := range m.records {
		if r.StudentID == studentID && r.LessonID == lessonID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memTickets struct {
	mu      sync.Mutex
	tickets map[[2]uint]*model.AttemptTicket
	ttls    map[[2]uint]time.Duration
	saveErr error
	// arrive holds every Take until all expected callers have reached it
	arrive *sync.WaitGroup
}

func newMemTickets() *memTickets {
	return &memTickets{tickets: map[[2]uint]*model.AttemptTicket{}, ttls: map[[2]uint]time.Duration{}}
}

func (m *memTickets) Save(_ context.Context, t *model.AttemptTicket, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	k := [2]uint{t.StudentID, t.LessonID}
	m.tickets[k] = t
	m.ttls[k] = ttl
	return nil
}

func (m *memTickets) Take(_ context.Context, studentID, lessonID uint) (*model.AttemptTicket, error) {
	if m.arrive != nil {
		m.arrive.Done()
		m.arrive.Wait()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]uint{studentID, lessonID}
	t, ok := m.tickets[k]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	delete(m.tickets, k)
	return t, nil
}

type memArchive struct {
	mu      sync.Mutex
	records []uint
}

func (m *memArchive) Archive(_ context.Context, r *model.AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r.ID)
	return nil
}

func lessonQuestion(id uint, order int, typ model.QuestionType, options []string, key string) model.Question {
	q := model.Question{Order: order, Type: typ, Options: options, CorrectAnswer: datatypes.JSON(key), Points: 1}
	q.ID = id
	return q
}

func testLesson() *model.Lesson {
	l := &model.Lesson{
		Title:     "fractions",
		Policy:    model.AttemptPolicy{MaxAttempts: 2, CooldownSeconds: 3600},
		TimeLimit: model.TimeLimit{Enabled: true, Minutes: 30},
		Randomization: model.RandomizationConfig{
			ShuffleQuestions: true,
			ShuffleAnswers:   true,
			Seed:             "seed-A",
		},
		Questions: []model.Question{
			lessonQuestion(1, 0, model.QuestionABCD, []string{"1/2", "1/3", "1/4", "1/5"}, `"B"`),
			lessonQuestion(2, 1, model.QuestionTrueFalse, nil, `true`),
			lessonQuestion(3, 2, model.QuestionNumber, nil, `"42"`),
		},
	}
	l.ID = 7
	return l
}

type attemptFixture struct {
	svc       *LessonAttemptService
	attempts  *memAttempts
	tickets   *memTickets
	publisher *recordingPublisher
	archive   *memArchive
	lesson    *model.Lesson
}

func newAttemptFixture() *attemptFixture {
	f := &attemptFixture{
		attempts:  &memAttempts{},
		tickets:   newMemTickets(),
		publisher: &recordingPublisher{},
		archive:   &memArchive{},
		lesson:    testLesson(),
	}
	f.svc = NewLessonAttemptService(fakeLessons{7: f.lesson}, f.attempts, f.tickets, f.publisher, f.archive,
		config.AttemptConfig{}, nil).WithClock(func() time.Time { return clock })
	return f
}

func answers(m map[uint]string) assessment.Submission {
	sub := assessment.Submission{}
	for id, v := range m {
		sub[id] = json.RawMessage(v)
	}
	return sub
}

func TestStartAttempt_Allowed(t *testing.T) {
	f := newAttemptFixture()

	res, err := f.svc.StartAttempt(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.AttemptNumber)
	assert.Equal(t, 30, res.TimeLimitMinutes)
	require.Len(t, res.Questions, 3)

	body, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "correctAnswer")

	ticket := f.tickets.tickets[[2]uint{1, 7}]
	require.NotNil(t, ticket)
	assert.Equal(t, 1, ticket.AttemptNumber)
	assert.Len(t, ticket.QuestionIDs, 3)
	assert.Equal(t, 40*time.Minute, f.tickets.ttls[[2]uint{1, 7}])
}

func TestStartAttempt_SameSeedSameOrder(t *testing.T) {
	f := newAttemptFixture()

	a, err := f.svc.StartAttempt(context.Background(), 7, 1)
	require.NoError(t, err)
	b, err := f.svc.StartAttempt(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, a.Questions, b.Questions)
}

func TestStartAttempt_Denied(t *testing.T) {
	t.Run("max attempts", func(t *testing.T) {
		f := newAttemptFixture()
		f.attempts.records = []model.AttemptRecord{
			{StudentID: 1, LessonID: 7, SubmittedAt: clock.Add(-48 * time.Hour)},
			{StudentID: 1, LessonID: 7, SubmittedAt: clock.Add(-24 * time.Hour)},
		}
		res, err := f.svc.StartAttempt(context.Background(), 7, 1)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, assessment.ReasonMaxAttempts, res.Reason)
		assert.Empty(t, res.Questions)
		assert.Empty(t, f.tickets.tickets)
	})

	t.Run("cooldown", func(t *testing.T) {
		f := newAttemptFixture()
		f.attempts.records = []model.AttemptRecord{
			{StudentID: 1, LessonID: 7, SubmittedAt: clock.Add(-(40*time.Minute + 55*time.Second))},
		}
		res, err := f.svc.StartAttempt(context.Background(), 7, 1)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, assessment.ReasonCooldown, res.Reason)
		assert.Equal(t, 19*time.Minute+5*time.Second, res.RemainingTime)
		assert.Equal(t, "19 minutes 5 seconds", res.RemainingText)
	})
}

func TestStartAttempt_UnknownLesson(t *testing.T) {
	f := newAttemptFixture()
	_, err := f.svc.StartAttempt(context.Background(), 99, 1)
	assert.ErrorIs(t, err, util.ErrLessonNotFound)
}

func TestSubmitAttempt_WithTicket(t *testing.T) {
	f := newAttemptFixture()
	ctx := context.Background()

	_, err := f.svc.StartAttempt(ctx, 7, 1)
	require.NoError(t, err)
	// only two of the three questions were presented
	f.tickets.tickets[[2]uint{1, 7}].QuestionIDs = []uint{3, 1}

	res, err := f.svc.SubmitAttempt(ctx, SubmitInput{
		LessonID:         7,
		StudentID:        1,
		Answers:          answers(map[uint]string{1: `"B"`, 2: `true`, 3: `"41"`}),
		TimeTakenSeconds: 95,
	})
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, 2.0, res.TotalPoints)
	require.Len(t, res.PerQuestion, 2)
	assert.Equal(t, uint(3), res.PerQuestion[0].QuestionID)
	assert.Equal(t, 1, res.AttemptNumber)
	assert.Equal(t, clock, res.SubmittedAt)

	require.Len(t, f.attempts.records, 1)
	assert.Equal(t, 95, f.attempts.records[0].TimeTakenSeconds)
	assert.Empty(t, f.tickets.tickets)

	events := f.publisher.submittedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, res.AttemptID, events[0].AttemptID)
	assert.Equal(t, []uint{res.AttemptID}, f.archive.records)
}

func TestSubmitAttempt_WithoutTicket(t *testing.T) {
	f := newAttemptFixture()

	res, err := f.svc.SubmitAttempt(context.Background(), SubmitInput{
		LessonID:         7,
		StudentID:        1,
		Answers:          answers(map[uint]string{2: `true`}),
		TimeTakenSeconds: -5,
	})
	require.NoError(t, err)
	f.svc.Wait()

	// pool disabled, so every question counts
	assert.Equal(t, 3.0, res.TotalPoints)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, 1, res.AttemptNumber)
	assert.Equal(t, 0, f.attempts.records[0].TimeTakenSeconds)
}

func poolFixture() *attemptFixture {
	f := newAttemptFixture()
	f.lesson.Policy = model.AttemptPolicy{MaxAttempts: 1}
	f.lesson.Randomization.EnableQuestionPool = true
	f.lesson.Randomization.PoolSize = 2
	return f
}

func TestSubmitAttempt_PoolRequiresTicket(t *testing.T) {
	f := poolFixture()

	_, err := f.svc.SubmitAttempt(context.Background(), SubmitInput{
		LessonID:  7,
		StudentID: 1,
		Answers:   answers(map[uint]string{1: `"B"`}),
	})
	assert.ErrorIs(t, err, util.ErrNoActiveAttempt)
	assert.Empty(t, f.attempts.records)
}

func TestSubmitAttempt_PoolGradesPresentedQuestions(t *testing.T) {
	f := poolFixture()
	ctx := context.Background()

	start, err := f.svc.StartAttempt(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, start.Questions, 2)

	// only one of the two presented questions is answered
	first := start.Questions[0].ID
	res, err := f.svc.SubmitAttempt(ctx, SubmitInput{
		LessonID:  7,
		StudentID: 1,
		Answers:   answers(map[uint]string{first: `"nothing"`}),
	})
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, 2.0, res.TotalPoints)
	assert.Len(t, res.PerQuestion, 2)
}

func TestSubmitAttempt_TicketSubmittedOnce(t *testing.T) {
	f := poolFixture()
	ctx := context.Background()

	_, err := f.svc.StartAttempt(ctx, 7, 1)
	require.NoError(t, err)

	f.tickets.arrive = &sync.WaitGroup{}
	f.tickets.arrive.Add(2)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitAttempt(ctx, SubmitInput{
				LessonID:  7,
				StudentID: 1,
				Answers:   answers(map[uint]string{1: `"B"`}),
			})
		}(i)
	}
	wg.Wait()
	f.svc.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, util.ErrNoActiveAttempt)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.attempts.records, 1)
}

func TestSubmitAttempt_SaveFailureRestoresTicket(t *testing.T) {
	f := poolFixture()
	ctx := context.Background()

	_, err := f.svc.StartAttempt(ctx, 7, 1)
	require.NoError(t, err)

	f.attempts.createErr = errors.New("db down")
	_, err = f.svc.SubmitAttempt(ctx, SubmitInput{LessonID: 7, StudentID: 1, Answers: answers(map[uint]string{1: `"B"`})})
	require.Error(t, err)
	assert.Contains(t, f.tickets.tickets, [2]uint{1, 7})

	f.attempts.createErr = nil
	_, err = f.svc.SubmitAttempt(ctx, SubmitInput{LessonID: 7, StudentID: 1, Answers: answers(map[uint]string{1: `"B"`})})
	require.NoError(t, err)
	f.svc.Wait()
	assert.Len(t, f.attempts.records, 1)
}

func TestStartAttempt_PoolTicketUnsaved(t *testing.T) {
	f := poolFixture()
	f.tickets.saveErr = errors.New("redis down")

	_, err := f.svc.StartAttempt(context.Background(), 7, 1)
	assert.Error(t, err)

	// without a pool the submit can still grade every question
	f = newAttemptFixture()
	f.tickets.saveErr = errors.New("redis down")
	res, err := f.svc.StartAttempt(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSubmitAttempt_LessonWithoutQuestions(t *testing.T) {
	f := newAttemptFixture()
	f.lesson.Questions = nil

	_, err := f.svc.SubmitAttempt(context.Background(), SubmitInput{LessonID: 7, StudentID: 1})
	assert.ErrorIs(t, err, util.ErrEmptySubmission)
}

func TestSubmitAttempt_DeniedWithoutTicket(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.records = []model.AttemptRecord{
		{StudentID: 1, LessonID: 7, SubmittedAt: clock.Add(-time.Minute)},
	}

	_, err := f.svc.SubmitAttempt(context.Background(), SubmitInput{
		LessonID:  7,
		StudentID: 1,
		Answers:   answers(map[uint]string{1: `"B"`}),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrAttemptDenied)

	var denied *AttemptDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, assessment.ReasonCooldown, denied.Decision.Reason)
	assert.Len(t, f.attempts.records, 1)
}

func TestSubmitAttempt_HistoryUnavailableFailsOpen(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.listErr = errors.New("db down")

	res, err := f.svc.SubmitAttempt(context.Background(), SubmitInput{
		LessonID:  7,
		StudentID: 1,
		Answers:   answers(map[uint]string{1: `"B"`}),
	})
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, 0, res.AttemptNumber)
	assert.Equal(t, 1.0, res.Score)
}

func TestPermission(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.records = []model.AttemptRecord{
		{StudentID: 1, LessonID: 7, SubmittedAt: clock.Add(-59 * time.Minute)},
	}

	res, err := f.svc.Permission(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "1 minute", res.RemainingText)

	history, err := f.svc.History(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
