package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lesson_engine_backend/internal/config"
	"lesson_engine_backend/internal/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StorageProvider 定义归档使用的对象存储接口
type StorageProvider interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// LocalStorageProvider 本地目录实现
type LocalStorageProvider struct {
	Root string
}

func (p *LocalStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	dst := filepath.Join(p.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, reader)
	return err
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Bucket string
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.ArchiveConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Bucket: cfg.Bucket, Client: client}, nil
}

// EnsureBucket 桶不存在时创建
func (p *MinioStorageProvider) EnsureBucket(ctx context.Context) error {
	exists, err := p.Client.BucketExists(ctx, p.Bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.Client.MakeBucket(ctx, p.Bucket, minio.MakeBucketOptions{})
}

func (p *MinioStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := p.Client.PutObject(ctx, p.Bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// ArchiveService 把评分后的作答记录写入对象存储，失败不影响提交
type ArchiveService struct {
	Provider StorageProvider
}

// NewArchiveService 根据配置选择存储；未配置时返回 nil Provider，Archive 为空操作
func NewArchiveService(ctx context.Context, cfg *config.ArchiveConfig) (*ArchiveService, error) {
	switch cfg.Type {
	case "minio":
		p, err := NewMinioStorageProvider(cfg)
		if err != nil {
			return nil, err
		}
		if err := p.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure archive bucket: %w", err)
		}
		return &ArchiveService{Provider: p}, nil
	case "local":
		return &ArchiveService{Provider: &LocalStorageProvider{Root: cfg.LocalPath}}, nil
	default:
		return &ArchiveService{}, nil
	}
}

func ArchiveKey(record *model.AttemptRecord) string {
	return fmt.Sprintf("lessons/%d/students/%d/attempt-%d-%d.json",
		record.LessonID, record.StudentID, record.AttemptNumber, record.ID)
}

func (s *ArchiveService) Archive(ctx context.Context, record *model.AttemptRecord) error {
	if s == nil || s.Provider == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.Provider.Upload(ctx, ArchiveKey(record), bytes.NewReader(data), int64(len(data)), "application/json")
}
