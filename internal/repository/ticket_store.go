package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lesson_engine_backend/internal/model"

	"github.com/go-redis/redis/v8"
)

var ErrTicketNotFound = errors.New("attempt ticket not found")

// TicketStore 记录开始作答时下发的题目，提交时据此评分
type TicketStore struct {
	rdb *redis.Client
}

func NewTicketStore(rdb *redis.Client) *TicketStore {
	return &TicketStore{rdb: rdb}
}

func ticketKey(studentID, lessonID uint) string {
	return fmt.Sprintf("attempt:ticket:%d:%d", studentID, lessonID)
}

// Save 覆盖同一学生同一课程之前的凭据
func (s *TicketStore) Save(ctx context.Context, ticket *model.AttemptTicket, ttl time.Duration) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, ticketKey(ticket.StudentID, ticket.LessonID), data, ttl).Err()
}

// Take 原子地读取并删除凭据，并发提交中只有一个能拿到
func (s *TicketStore) Take(ctx context.Context, studentID, lessonID uint) (*model.AttemptTicket, error) {
	data, err := s.rdb.GetDel(ctx, ticketKey(studentID, lessonID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	var ticket model.AttemptTicket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return nil, fmt.Errorf("decode attempt ticket: %w", err)
	}
	return &ticket, nil
}
