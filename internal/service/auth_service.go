package service

import (
	"context"
	"errors"
	"time"

	"lesson_engine_backend/internal/config"
	"lesson_engine_backend/internal/model"
	"lesson_engine_backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, userID uint, at time.Time) error
}

type AuthService struct {
	UserRepo UserStore
	Sessions *SessionService
	Cfg      *config.Config
	log      *zap.Logger
}

func NewAuthService(userRepo UserStore, sessions *SessionService, cfg *config.Config, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		UserRepo: userRepo,
		Sessions: sessions,
		Cfg:      cfg,
		log:      log,
	}
}

func (s *AuthService) Register(ctx context.Context, user *model.User) error {
	_, err := s.UserRepo.FindByEmail(ctx, user.Email)
	if err == nil {
		return util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashedPassword)
	if user.Role == "" {
		user.Role = model.Student
	}
	return s.UserRepo.Create(ctx, user)
}

type LoginResult struct {
	Token     string      `json:"token"`
	SessionID string      `json:"sessionId"`
	User      *model.User `json:"user"`
}

// Login 校验密码后开启新会话，同一学生之前的会话随之失效
func (s *AuthService) Login(ctx context.Context, email, password, deviceID string) (*LoginResult, error) {
	user, err := s.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, util.ErrAccountDisabled
	}

	sessionID := uuid.NewString()
	if err := s.Sessions.Open(ctx, user.ID, sessionID, deviceID); err != nil {
		return nil, err
	}

	if err := s.UserRepo.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.log.Warn("failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	token, err := util.GenerateJWT(user, sessionID, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, SessionID: sessionID, User: user}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID uint, sessionID string) error {
	return s.Sessions.Logout(ctx, userID, sessionID)
}

func (s *AuthService) GetCurrentUser(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}
