package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"lesson_engine_backend/internal/assessment"
	"lesson_engine_backend/internal/config"
	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/internal/repository"
	"lesson_engine_backend/internal/util"
	"lesson_engine_backend/pkg/events"
	"lesson_engine_backend/pkg/monitoring"
	"lesson_engine_backend/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LessonReader interface {
	FindByID(ctx context.Context, id uint) (*model.Lesson, error)
}

// AttemptStore 作答记录只追加
type AttemptStore interface {
	assessment.AttemptHistory
	Create(ctx context.Context, record *model.AttemptRecord) error
}

// TicketStore 的 Take 必须是原子的读取并删除，同一凭据只能被一次提交取走
type TicketStore interface {
	Save(ctx context.Context, ticket *model.AttemptTicket, ttl time.Duration) error
	Take(ctx context.Context, studentID, lessonID uint) (*model.AttemptTicket, error)
}

type ResultArchiver interface {
	Archive(ctx context.Context, record *model.AttemptRecord) error
}

// AttemptDeniedError 携带拒绝原因，调用方据此渲染具体提示
type AttemptDeniedError struct {
	Decision assessment.Decision
}

func (e *AttemptDeniedError) Error() string {
	return fmt.Sprintf("attempt not permitted: %s", e.Decision.Reason)
}

func (e *AttemptDeniedError) Unwrap() error {
	return util.ErrAttemptDenied
}

type StartResult struct {
	Allowed          bool                           `json:"allowed"`
	Reason           assessment.DenialReason        `json:"reason,omitempty"`
	RemainingTime    time.Duration                  `json:"-"`
	RemainingSeconds int64                          `json:"remainingSeconds,omitempty"`
	RemainingText    string                         `json:"remainingText,omitempty"`
	Attempts         int                            `json:"attempts"`
	MaxAttempts      int                            `json:"maxAttempts,omitempty"`
	AttemptNumber    int                            `json:"attemptNumber,omitempty"`
	Questions        []assessment.PresentedQuestion `json:"questions,omitempty"`
	Shortfalls       []assessment.Shortfall         `json:"shortfalls,omitempty"`
	TimeLimitMinutes int                            `json:"timeLimitMinutes,omitempty"`
}

type SubmitInput struct {
	LessonID         uint
	StudentID        uint
	Answers          assessment.Submission
	TimeTakenSeconds int
}

type SubmitResult struct {
	AttemptID     uint                    `json:"attemptId"`
	AttemptNumber int                     `json:"attemptNumber"`
	Score         float64                 `json:"score"`
	TotalPoints   float64                 `json:"totalPoints"`
	PerQuestion   []model.QuestionOutcome `json:"perQuestion"`
	Warnings      []assessment.Warning    `json:"warnings,omitempty"`
	SubmittedAt   time.Time               `json:"submittedAt"`
}

// PermissionResult 是不生成题目的作答资格查询结果
type PermissionResult struct {
	assessment.Decision
	RemainingText string `json:"remainingText,omitempty"`
}

type LessonAttemptService struct {
	lessons   LessonReader
	attempts  AttemptStore
	tickets   TicketStore
	publisher events.Publisher
	archiver  ResultArchiver
	governor  *assessment.Governor
	selector  *assessment.PoolSelector
	cfg       config.AttemptConfig
	log       *zap.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

func NewLessonAttemptService(
	lessons LessonReader,
	attempts AttemptStore,
	tickets TicketStore,
	publisher events.Publisher,
	archiver ResultArchiver,
	cfg config.AttemptConfig,
	log *zap.Logger,
) *LessonAttemptService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LessonAttemptService{
		lessons:   lessons,
		attempts:  attempts,
		tickets:   tickets,
		publisher: publisher,
		archiver:  archiver,
		governor:  assessment.NewGovernor(attempts, log.Named("governor")),
		selector:  assessment.NewPoolSelector(log.Named("pool")),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// WithClock 替换时钟，governor 与提交时间共用
func (s *LessonAttemptService) WithClock(now func() time.Time) *LessonAttemptService {
	s.now = now
	s.governor.WithClock(now)
	return s
}

func (s *LessonAttemptService) loadLesson(ctx context.Context, lessonID uint) (*model.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lesson %d: %w", lessonID, err)
	}
	return lesson, nil
}

// Permission 只做资格判断，不下发题目
func (s *LessonAttemptService) Permission(ctx context.Context, lessonID, studentID uint) (*PermissionResult, error) {
	lesson, err := s.loadLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	decision := s.governor.Check(ctx, lesson, studentID)
	res := &PermissionResult{Decision: decision}
	if decision.Reason == assessment.ReasonCooldown {
		res.RemainingText = util.FormatRemaining(decision.RemainingTime)
	}
	return res, nil
}

// StartAttempt 判断是否允许作答，允许时生成本次的题目集合并记录凭据
func (s *LessonAttemptService) StartAttempt(ctx context.Context, lessonID, studentID uint) (_ *StartResult, err error) {
	ctx, span := tracing.Start(ctx, "LessonAttemptService.StartAttempt",
		attribute.Int64("lesson.id", int64(lessonID)),
		attribute.Int64("student.id", int64(studentID)))
	defer func() { tracing.End(span, err) }()

	lesson, err := s.loadLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	decision := s.governor.Check(ctx, lesson, studentID)
	s.recordDecision(decision)
	span.SetAttributes(attribute.Bool("attempt.allowed", decision.Allowed))

	if !decision.Allowed {
		res := &StartResult{
			Reason:           decision.Reason,
			RemainingTime:    decision.RemainingTime,
			RemainingSeconds: decision.RemainingSeconds,
			Attempts:         decision.Attempts,
			MaxAttempts:      decision.MaxAttempts,
		}
		if decision.Reason == assessment.ReasonCooldown {
			res.RemainingText = util.FormatRemaining(decision.RemainingTime)
		}
		s.log.Info("attempt denied",
			zap.Uint("student_id", studentID),
			zap.Uint("lesson_id", lessonID),
			zap.String("reason", string(decision.Reason)))
		return res, nil
	}

	rng := assessment.Seeded(lesson.Randomization.Seed)
	set := assessment.BuildQuestionSet(lesson, rng, s.selector)
	for _, sf := range set.Shortfalls {
		monitoring.PoolShortfalls.WithLabelValues(string(sf.Type)).Inc()
	}

	if s.tickets != nil {
		ticket := &model.AttemptTicket{
			ID:            uuid.NewString(),
			StudentID:     studentID,
			LessonID:      lessonID,
			AttemptNumber: decision.AttemptNumber,
			QuestionIDs:   set.QuestionIDs,
			Seed:          lesson.Randomization.Seed,
			IssuedAt:      s.now(),
		}
		if terr := s.tickets.Save(ctx, ticket, s.ticketTTL(lesson)); terr != nil {
			// 抽题课程没有凭据无法提交
			if lesson.Randomization.EnableQuestionPool {
				return nil, fmt.Errorf("save attempt ticket: %w", terr)
			}
			// 凭据丢失时提交按课程全部题目评分
			s.log.Warn("failed to save attempt ticket",
				zap.Uint("student_id", studentID),
				zap.Uint("lesson_id", lessonID),
				zap.Error(terr))
		}
	}

	return &StartResult{
		Allowed:          true,
		Attempts:         decision.Attempts,
		MaxAttempts:      decision.MaxAttempts,
		AttemptNumber:    decision.AttemptNumber,
		Questions:        set.Questions,
		Shortfalls:       set.Shortfalls,
		TimeLimitMinutes: int(lesson.TimeLimit.Duration() / time.Minute),
	}, nil
}

func (s *LessonAttemptService) recordDecision(d assessment.Decision) {
	switch {
	case d.FailedOpen:
		monitoring.GovernorFailOpen.Inc()
		monitoring.AttemptDecisions.WithLabelValues("allowed").Inc()
	case d.Allowed:
		monitoring.AttemptDecisions.WithLabelValues("allowed").Inc()
	default:
		monitoring.AttemptDecisions.WithLabelValues(string(d.Reason)).Inc()
	}
}

func (s *LessonAttemptService) ticketTTL(lesson *model.Lesson) time.Duration {
	if limit := lesson.TimeLimit.Duration(); limit > 0 {
		return limit + s.cfg.TicketGrace()
	}
	return s.cfg.TicketTTL()
}

// SubmitAttempt 评分并写入一条新的作答记录
func (s *LessonAttemptService) SubmitAttempt(ctx context.Context, in SubmitInput) (_ *SubmitResult, err error) {
	ctx, span := tracing.Start(ctx, "LessonAttemptService.SubmitAttempt",
		attribute.Int64("lesson.id", int64(in.LessonID)),
		attribute.Int64("student.id", int64(in.StudentID)))
	defer func() { tracing.End(span, err) }()

	lesson, err := s.loadLesson(ctx, in.LessonID)
	if err != nil {
		return nil, err
	}

	ticket := s.takeTicket(ctx, in.StudentID, in.LessonID)

	var (
		attemptNumber int
		questions     []model.Question
	)
	switch {
	case ticket != nil:
		attemptNumber = ticket.AttemptNumber
		questions = questionsByID(lesson.Questions, ticket.QuestionIDs)
	case lesson.Randomization.EnableQuestionPool:
		// 抽题课程只能按下发过的题目评分
		return nil, util.ErrNoActiveAttempt
	default:
		decision := s.governor.Check(ctx, lesson, in.StudentID)
		if !decision.Allowed {
			return nil, &AttemptDeniedError{Decision: decision}
		}
		attemptNumber = decision.AttemptNumber
		questions = lesson.Questions
	}
	if len(questions) == 0 {
		return nil, util.ErrEmptySubmission
	}

	result := assessment.Grade(questions, in.Answers)
	for _, w := range result.Warnings {
		monitoring.GradingWarnings.WithLabelValues(string(w.Code)).Inc()
		s.log.Warn("grading warning",
			zap.Uint("lesson_id", in.LessonID),
			zap.Uint("question_id", w.QuestionID),
			zap.String("code", string(w.Code)),
			zap.String("message", w.Message))
	}

	submission, err := json.Marshal(in.Answers)
	if err != nil {
		return nil, err
	}
	timeTaken := in.TimeTakenSeconds
	if timeTaken < 0 {
		timeTaken = 0
	}

	record := &model.AttemptRecord{
		StudentID:        in.StudentID,
		LessonID:         in.LessonID,
		AttemptNumber:    attemptNumber,
		SubmittedAt:      s.now(),
		Answers:          result.PerQuestion,
		Submission:       datatypes.JSON(submission),
		Score:            result.Score,
		TotalPoints:      result.TotalPoints,
		TimeTakenSeconds: timeTaken,
		WarningCount:     len(result.Warnings),
	}
	if err = s.attempts.Create(ctx, record); err != nil {
		s.restoreTicket(ctx, lesson, ticket)
		return nil, fmt.Errorf("save attempt: %w", err)
	}

	monitoring.AttemptsSubmitted.Inc()
	if record.TotalPoints > 0 {
		monitoring.AttemptScoreRatio.Observe(record.Score / record.TotalPoints)
	}
	s.log.Info("attempt graded",
		zap.Uint("attempt_id", record.ID),
		zap.Uint("student_id", in.StudentID),
		zap.Uint("lesson_id", in.LessonID),
		zap.Int("attempt_number", attemptNumber),
		zap.Float64("score", record.Score),
		zap.Float64("total_points", record.TotalPoints))

	s.afterSubmit(ctx, record)

	return &SubmitResult{
		AttemptID:     record.ID,
		AttemptNumber: record.AttemptNumber,
		Score:         record.Score,
		TotalPoints:   record.TotalPoints,
		PerQuestion:   record.Answers,
		Warnings:      result.Warnings,
		SubmittedAt:   record.SubmittedAt,
	}, nil
}

// takeTicket 取走凭据，之后同一凭据的并发提交都拿不到它
func (s *LessonAttemptService) takeTicket(ctx context.Context, studentID, lessonID uint) *model.AttemptTicket {
	if s.tickets == nil {
		return nil
	}
	ticket, err := s.tickets.Take(ctx, studentID, lessonID)
	if err != nil {
		if !errors.Is(err, repository.ErrTicketNotFound) {
			s.log.Warn("failed to take attempt ticket",
				zap.Uint("student_id", studentID),
				zap.Uint("lesson_id", lessonID),
				zap.Error(err))
		}
		return nil
	}
	return ticket
}

// restoreTicket 作答记录未能保存时放回凭据，学生可以重新提交
func (s *LessonAttemptService) restoreTicket(ctx context.Context, lesson *model.Lesson, ticket *model.AttemptTicket) {
	if ticket == nil {
		return
	}
	if err := s.tickets.Save(context.WithoutCancel(ctx), ticket, s.ticketTTL(lesson)); err != nil {
		s.log.Warn("failed to restore attempt ticket",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

// afterSubmit 异步发布事件并归档，失败只记录日志
func (s *LessonAttemptService) afterSubmit(ctx context.Context, record *model.AttemptRecord) {
	if s.publisher == nil && s.archiver == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if s.publisher != nil {
			ev := events.NewAttemptSubmittedEvent(record.ID, record.StudentID, record.LessonID,
				record.AttemptNumber, record.Score, record.TotalPoints, record.SubmittedAt)
			if err := s.publisher.PublishAttemptSubmitted(bctx, ev); err != nil {
				monitoring.EventPublishFailures.WithLabelValues(string(events.AttemptSubmitted)).Inc()
				s.log.Warn("failed to publish attempt event", zap.Uint("attempt_id", record.ID), zap.Error(err))
			}
		}
		if s.archiver != nil {
			if err := s.archiver.Archive(bctx, record); err != nil {
				s.log.Warn("failed to archive attempt", zap.Uint("attempt_id", record.ID), zap.Error(err))
			}
		}
	}()
}

// Wait 等待后台的事件发布与归档结束
func (s *LessonAttemptService) Wait() {
	s.wg.Wait()
}

func (s *LessonAttemptService) History(ctx context.Context, lessonID, studentID uint) ([]model.AttemptRecord, error) {
	return s.attempts.ListByStudentAndLesson(ctx, studentID, lessonID)
}

// questionsByID 按凭据中的顺序取题，课程中已不存在的题目跳过
func questionsByID(all []model.Question, ids []uint) []model.Question {
	byID := make(map[uint]model.Question, len(all))
	for _, q := range all {
		byID[q.ID] = q
	}
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out
}
