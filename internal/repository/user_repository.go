package repository

import (
	"context"
	"time"

	"lesson_engine_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	return &user, err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	return &user, err
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID uint, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_login", at).
		Error
}

// GetIdentity 读取会话互斥所需的身份记录
func (r *UserRepository) GetIdentity(ctx context.Context, studentID uint) (model.StudentIdentity, error) {
	var user model.User
	err := r.DB.WithContext(ctx).
		Select("id", "current_session_id", "device_id").
		First(&user, studentID).Error
	if err != nil {
		return model.StudentIdentity{}, err
	}
	return user.Identity(), nil
}

// SetCurrentSession 无条件覆盖当前会话，最后一次写入生效，不加锁
func (r *UserRepository) SetCurrentSession(ctx context.Context, studentID uint, sessionID, deviceID string) error {
	updates := map[string]interface{}{"current_session_id": sessionID}
	if deviceID != "" {
		updates["device_id"] = deviceID
	}
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", studentID).Updates(updates).Error
}

// ClearCurrentSession 仅当当前会话仍是 sessionID 时清空，返回是否清空
func (r *UserRepository) ClearCurrentSession(ctx context.Context, studentID uint, sessionID string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND current_session_id = ?", studentID, sessionID).
		Update("current_session_id", "")
	return res.RowsAffected > 0, res.Error
}
