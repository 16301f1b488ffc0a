package repository

import (
	"context"
	"testing"
	"time"

	"lesson_engine_backend/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Lesson{}, &model.Question{}, &model.AttemptRecord{}))
	return db
}

func createStudent(t *testing.T, repo *UserRepository, email string) *model.User {
	t.Helper()
	u := &model.User{Name: "s", Email: email, Password: "x", Role: model.Student}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestUserRepository_SessionIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	u := createStudent(t, repo, "a@example.com")

	id, err := repo.GetIdentity(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudentIdentity{StudentID: u.ID}, id)

	require.NoError(t, repo.SetCurrentSession(ctx, u.ID, "S1", "laptop"))
	require.NoError(t, repo.SetCurrentSession(ctx, u.ID, "S2", ""))

	id, err = repo.GetIdentity(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "S2", id.CurrentSessionID)
	assert.Equal(t, "laptop", id.DeviceID, "empty device id keeps the stored one")

	cleared, err := repo.ClearCurrentSession(ctx, u.ID, "S1")
	require.NoError(t, err)
	assert.False(t, cleared, "stale session must not clear the live one")

	cleared, err = repo.ClearCurrentSession(ctx, u.ID, "S2")
	require.NoError(t, err)
	assert.True(t, cleared)

	id, err = repo.GetIdentity(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, id.CurrentSessionID)
}

func TestUserRepository_FindByEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	u := createStudent(t, repo, "b@example.com")

	found, err := repo.FindByEmail(ctx, "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = repo.FindByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.GetIdentity(ctx, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLessonRepository_CreateAndFindOrdersQuestions(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonRepository(newTestDB(t))

	lesson := &model.Lesson{
		Title: "fractions",
		Randomization: model.RandomizationConfig{
			ShuffleQuestions:   true,
			EnableQuestionPool: true,
			PoolSize:           2,
			TypeDistribution:   map[model.QuestionType]int{model.QuestionABCD: 1},
			Seed:               "lesson-seed",
		},
		Policy:    model.AttemptPolicy{MaxAttempts: 3, CooldownSeconds: 600},
		TimeLimit: model.TimeLimit{Enabled: true, Minutes: 15},
		Questions: []model.Question{
			{Order: 2, Type: model.QuestionNumber, Prompt: "1/2 as decimal", CorrectAnswer: datatypes.JSON(`"0.5"`), Points: 1},
			{Order: 1, Type: model.QuestionABCD, Prompt: "pick", Options: []string{"a", "b"}, CorrectAnswer: datatypes.JSON(`"A"`), Points: 2},
			{Order: 3, Type: model.QuestionTrueFalse, Prompt: "tf", Options: []string{"x", "y"}, CorrectAnswer: datatypes.JSON(`[true,false]`)},
		},
	}
	require.NoError(t, repo.Create(ctx, lesson))
	require.NotZero(t, lesson.ID)

	got, err := repo.FindByID(ctx, lesson.ID)
	require.NoError(t, err)

	require.Len(t, got.Questions, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got.Questions[0].Order, got.Questions[1].Order, got.Questions[2].Order})
	assert.Equal(t, lesson.Randomization, got.Randomization)
	assert.Equal(t, lesson.Policy, got.Policy)
	assert.Equal(t, lesson.TimeLimit, got.TimeLimit)
	assert.Equal(t, []string{"a", "b"}, got.Questions[0].Options)
	assert.JSONEq(t, `[true,false]`, string(got.Questions[2].CorrectAnswer))

	_, err = repo.FindByID(ctx, 12345)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAttemptRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewAttemptRepository(newTestDB(t))
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{base.Add(time.Hour), base, base.Add(2 * time.Hour)} {
		rec := &model.AttemptRecord{
			StudentID:     1,
			LessonID:      2,
			AttemptNumber: i + 1,
			SubmittedAt:   at,
			Answers: []model.QuestionOutcome{
				{QuestionID: 1, Type: model.QuestionABCD, UserAnswer: "A", CorrectAnswer: "A", IsCorrect: true, Points: 1, EarnedPoints: 1},
			},
			Submission:  datatypes.JSON(`{"1":"A"}`),
			Score:       1,
			TotalPoints: 1,
		}
		require.NoError(t, repo.Create(ctx, rec))
	}
	require.NoError(t, repo.Create(ctx, &model.AttemptRecord{StudentID: 1, LessonID: 3, SubmittedAt: base}))

	list, err := repo.ListByStudentAndLesson(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].SubmittedAt.Equal(base))
	assert.True(t, list[2].SubmittedAt.Equal(base.Add(2*time.Hour)))
	require.Len(t, list[0].Answers, 1)
	assert.Equal(t, "A", list[0].Answers[0].UserAnswer)

	count, err := repo.CountByStudentAndLesson(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	rec, err := repo.FindByID(ctx, list[1].ID)
	require.NoError(t, err)
	assert.Equal(t, list[1].AttemptNumber, rec.AttemptNumber)
}
