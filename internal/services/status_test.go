package services

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
	"github.com/fyerfyer/paper-QA-pipeline/internal/repository"
)

// newQuietLogger 创建静默的测试日志器
func newQuietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// setupStatusManager 创建基于临时SQLite数据库的状态管理器
func setupStatusManager(t *testing.T) (*PaperStatusManager, repository.PaperRepository) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "status_test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Paper{}))

	repo := repository.NewPaperRepositoryWithDB(db)
	return NewPaperStatusManager(repo, newQuietLogger()), repo
}

func queuedPaper(t *testing.T, m *PaperStatusManager, id string) {
	t.Helper()
	require.NoError(t, m.MarkAsQueued(context.Background(), &models.Paper{
		ID:     id,
		Title:  "test paper",
		Source: "papers/" + id + ".pdf",
	}))
}

// TestStatusLifecycle 测试完整的状态生命周期
func TestStatusLifecycle(t *testing.T) {
	m, _ := setupStatusManager(t)
	ctx := context.Background()

	queuedPaper(t, m, "paper-1")

	status, err := m.GetStatus(ctx, "paper-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaperStatusQueued, status)

	require.NoError(t, m.MarkAsProcessing(ctx, "paper-1"))
	status, err = m.GetStatus(ctx, "paper-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaperStatusProcessing, status)

	require.NoError(t, m.MarkAsDone(ctx, "paper-1", "run-1", 12, "ingested 12 chunks"))

	paper, err := m.GetPaper(ctx, "paper-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaperStatusDone, paper.Status)
	assert.Equal(t, 12, paper.ChunkCount)
	assert.Equal(t, "run-1", paper.LastRunID)
	assert.Equal(t, "ingested 12 chunks", paper.Note)
	assert.NotNil(t, paper.ProcessedAt)
}

// TestStatusInvalidTransition 测试非法状态转换被拒绝
func TestStatusInvalidTransition(t *testing.T) {
	m, _ := setupStatusManager(t)
	ctx := context.Background()

	queuedPaper(t, m, "paper-1")

	// 未经过processing不能直接完成
	err := m.MarkAsDone(ctx, "paper-1", "run-1", 5, "")
	assert.Error(t, err)

	status, getErr := m.GetStatus(ctx, "paper-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.PaperStatusQueued, status)
}

// TestStatusReingestAfterDone 测试完成后的重摄取
func TestStatusReingestAfterDone(t *testing.T) {
	m, _ := setupStatusManager(t)
	ctx := context.Background()

	queuedPaper(t, m, "paper-1")
	require.NoError(t, m.MarkAsProcessing(ctx, "paper-1"))
	require.NoError(t, m.MarkAsDone(ctx, "paper-1", "run-1", 5, ""))

	// done是终态，但重新入队后允许再次进入processing
	require.NoError(t, m.MarkAsProcessing(ctx, "paper-1"))
}

// TestStatusRetryAfterFailed 测试失败后的重试
func TestStatusRetryAfterFailed(t *testing.T) {
	m, _ := setupStatusManager(t)
	ctx := context.Background()

	queuedPaper(t, m, "paper-1")
	require.NoError(t, m.MarkAsProcessing(ctx, "paper-1"))
	require.NoError(t, m.MarkAsFailed(ctx, "paper-1", "run-1", "extraction error"))

	paper, err := m.GetPaper(ctx, "paper-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaperStatusFailed, paper.Status)
	assert.Equal(t, "extraction error", paper.Error)

	require.NoError(t, m.MarkAsProcessing(ctx, "paper-1"))
}

// TestStatusQueuedKeepsState 测试重复登记不重置已有状态
func TestStatusQueuedKeepsState(t *testing.T) {
	m, _ := setupStatusManager(t)
	ctx := context.Background()

	queuedPaper(t, m, "paper-1")
	require.NoError(t, m.MarkAsProcessing(ctx, "paper-1"))
	require.NoError(t, m.MarkAsDone(ctx, "paper-1", "run-1", 5, ""))

	// 队列同步再次看到同一篇论文
	queuedPaper(t, m, "paper-1")

	status, err := m.GetStatus(ctx, "paper-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaperStatusDone, status)
}

// TestStatusMarkProcessingMissing 测试操作不存在的论文
func TestStatusMarkProcessingMissing(t *testing.T) {
	m, _ := setupStatusManager(t)

	err := m.MarkAsProcessing(context.Background(), "no-such-paper")
	assert.ErrorIs(t, err, repository.ErrPaperNotFound)
}

// TestStatusDeletePaper 测试删除状态记录
func TestStatusDeletePaper(t *testing.T) {
	m, _ := setupStatusManager(t)
	ctx := context.Background()

	queuedPaper(t, m, "paper-1")
	require.NoError(t, m.DeletePaper(ctx, "paper-1"))

	_, err := m.GetStatus(ctx, "paper-1")
	assert.ErrorIs(t, err, repository.ErrPaperNotFound)
}

// TestValidateStateTransition 测试状态转换表
func TestValidateStateTransition(t *testing.T) {
	m, _ := setupStatusManager(t)

	cases := []struct {
		from  models.PaperStatus
		to    models.PaperStatus
		valid bool
	}{
		{models.PaperStatusQueued, models.PaperStatusProcessing, true},
		{models.PaperStatusQueued, models.PaperStatusFailed, true},
		{models.PaperStatusQueued, models.PaperStatusDone, false},
		{models.PaperStatusProcessing, models.PaperStatusDone, true},
		{models.PaperStatusProcessing, models.PaperStatusFailed, true},
		{models.PaperStatusProcessing, models.PaperStatusQueued, false},
		{models.PaperStatusDone, models.PaperStatusProcessing, true},
		{models.PaperStatusDone, models.PaperStatusFailed, false},
		{models.PaperStatusFailed, models.PaperStatusProcessing, true},
		{models.PaperStatusFailed, models.PaperStatusDone, false},
	}

	for _, tc := range cases {
		err := m.ValidateStateTransition(tc.from, tc.to)
		if tc.valid {
			assert.NoError(t, err, "%s -> %s should be valid", tc.from, tc.to)
		} else {
			assert.Error(t, err, "%s -> %s should be invalid", tc.from, tc.to)
		}
	}
}
