package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"lesson_engine_backend/internal/config"
	"lesson_engine_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveService_Local(t *testing.T) {
	root := t.TempDir()
	svc, err := NewArchiveService(context.Background(), &config.ArchiveConfig{Type: "local", LocalPath: root})
	require.NoError(t, err)

	rec := &model.AttemptRecord{ID: 5, StudentID: 2, LessonID: 9, AttemptNumber: 1, Score: 3, TotalPoints: 4}
	require.NoError(t, svc.Archive(context.Background(), rec))

	data, err := os.ReadFile(filepath.Join(root, "lessons", "9", "students", "2", "attempt-1-5.json"))
	require.NoError(t, err)

	var got model.AttemptRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 3.0, got.Score)
}

func TestArchiveService_DisabledIsNoop(t *testing.T) {
	svc, err := NewArchiveService(context.Background(), &config.ArchiveConfig{})
	require.NoError(t, err)
	assert.NoError(t, svc.Archive(context.Background(), &model.AttemptRecord{}))

	var nilSvc *ArchiveService
	assert.NoError(t, nilSvc.Archive(context.Background(), &model.AttemptRecord{}))
}

func TestNewMinioStorageProvider(t *testing.T) {
	p, err := NewMinioStorageProvider(&config.ArchiveConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "attempts"})
	require.NoError(t, err)
	assert.Equal(t, "attempts", p.Bucket)

	_, err = NewMinioStorageProvider(&config.ArchiveConfig{Endpoint: ""})
	assert.Error(t, err)
}
