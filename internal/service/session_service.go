package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/pkg/events"
	"lesson_engine_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IdentityStore holds the currentSessionId of each student.
type IdentityStore interface {
	GetIdentity(ctx context.Context, studentID uint) (model.StudentIdentity, error)
	SetCurrentSession(ctx context.Context, studentID uint, sessionID, deviceID string) error
	ClearCurrentSession(ctx context.Context, studentID uint, sessionID string) (bool, error)
}

// SessionStore is the external store keyed by session id.
type SessionStore interface {
	Create(ctx context.Context, session *model.Session, ttl time.Duration) error
	Destroy(ctx context.Context, sessionID string) error
}

// SessionService enforces one live session per student. The identity record
// is overwritten without locking; whichever login writes last wins.
type SessionService struct {
	identities     IdentityStore
	sessions       SessionStore
	publisher      events.Publisher
	log            *zap.Logger
	ttl            time.Duration
	destroyTimeout time.Duration

	wg sync.WaitGroup
}

func NewSessionService(identities IdentityStore, sessions SessionStore, publisher events.Publisher, ttl, destroyTimeout time.Duration, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{
		identities:     identities,
		sessions:       sessions,
		publisher:      publisher,
		log:            log,
		ttl:            ttl,
		destroyTimeout: destroyTimeout,
	}
}

// Open records a new session in the store and makes it the student's live one.
func (s *SessionService) Open(ctx context.Context, studentID uint, sessionID, deviceID string) error {
	now := time.Now()
	err := s.sessions.Create(ctx, &model.Session{
		ID:        sessionID,
		StudentID: studentID,
		DeviceID:  deviceID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, s.ttl)
	if err != nil {
		return err
	}
	return s.OnLogin(ctx, studentID, sessionID, deviceID)
}

// OnLogin makes newSessionID the only live session for studentID. A previous
// session is destroyed in the background; that never delays or fails the login.
func (s *SessionService) OnLogin(ctx context.Context, studentID uint, newSessionID, deviceID string) error {
	identity, err := s.identities.GetIdentity(ctx, studentID)
	if err != nil {
		// The overwrite below still has to happen, only the cleanup is lost.
		s.log.Warn("could not read current session before login",
			zap.Uint("student_id", studentID), zap.Error(err))
	}

	old := identity.CurrentSessionID
	if old != "" && old != newSessionID {
		monitoring.SessionsSuperseded.Inc()
		s.destroyAsync(ctx, studentID, old, newSessionID, deviceID)
	}

	return s.identities.SetCurrentSession(ctx, studentID, newSessionID, deviceID)
}

// IsSessionLive reports whether sessionID is the student's current session.
// A superseded session is dead even while its store record still exists.
func (s *SessionService) IsSessionLive(ctx context.Context, studentID uint, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	identity, err := s.identities.GetIdentity(ctx, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 用户已被删除，令牌中的会话随之失效
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return identity.CurrentSessionID == sessionID, nil
}

// Logout ends sessionID. The identity is only cleared if sessionID is still
// the live one, so a stale logout cannot end a newer session.
func (s *SessionService) Logout(ctx context.Context, studentID uint, sessionID string) error {
	if _, err := s.identities.ClearCurrentSession(ctx, studentID, sessionID); err != nil {
		return err
	}
	return s.sessions.Destroy(ctx, sessionID)
}

func (s *SessionService) destroyAsync(ctx context.Context, studentID uint, oldSessionID, newSessionID, deviceID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.destroyTimeout)
		defer cancel()

		if err := s.sessions.Destroy(dctx, oldSessionID); err != nil {
			monitoring.SessionDestroyFailures.Inc()
			s.log.Warn("failed to destroy superseded session",
				zap.Uint("student_id", studentID),
				zap.String("session_id", oldSessionID),
				zap.Error(err))
		} else {
			s.log.Info("superseded session destroyed",
				zap.Uint("student_id", studentID),
				zap.String("session_id", oldSessionID))
		}

		if s.publisher == nil {
			return
		}
		ev := events.NewSessionSupersededEvent(studentID, oldSessionID, newSessionID, deviceID)
		if err := s.publisher.PublishSessionSuperseded(dctx, ev); err != nil {
			monitoring.EventPublishFailures.WithLabelValues(string(events.SessionSuperseded)).Inc()
			s.log.Warn("failed to publish session event", zap.Error(err))
		}
	}()
}

// Wait blocks until background session cleanups have finished.
func (s *SessionService) Wait() {
	s.wg.Wait()
}
