package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
	"github.com/fyerfyer/paper-QA-pipeline/internal/repository"
)

// LocalQueue 基于论文仓储的本地队列
// 不依赖外部表格服务，论文通过API或数据库直接登记
type LocalQueue struct {
	repo repository.PaperRepository
}

// NewLocalQueue 创建本地队列
func NewLocalQueue(repo repository.PaperRepository) *LocalQueue {
	return &LocalQueue{repo: repo}
}

// Enqueue 登记一篇待处理论文
// 已存在的论文只刷新基础字段，不重置状态
func (q *LocalQueue) Enqueue(ctx context.Context, item PaperItem) error {
	if item.ID == "" {
		item.ID = DerivePaperID(item.Path)
	}

	metadata, err := json.Marshal(map[string]string{
		"authors":          item.Authors,
		"publication_year": item.Year,
	})
	if err != nil {
		return err
	}

	return q.repo.Upsert(&models.Paper{
		ID:       item.ID,
		Title:    item.Title,
		Source:   item.Path,
		Status:   models.PaperStatusQueued,
		Metadata: metadata,
	})
}

// Pending 返回所有待处理的论文
func (q *LocalQueue) Pending(ctx context.Context) ([]PaperItem, error) {
	papers, err := q.repo.ListByStatus(models.PaperStatusQueued)
	if err != nil {
		return nil, err
	}

	items := make([]PaperItem, 0, len(papers))
	for _, paper := range papers {
		item := PaperItem{
			ID:    paper.ID,
			Title: paper.Title,
			Path:  paper.Source,
		}
		if len(paper.Metadata) > 0 {
			var meta map[string]string
			if err := json.Unmarshal(paper.Metadata, &meta); err == nil {
				item.Authors = meta["authors"]
				item.Year = meta["publication_year"]
			}
		}
		items = append(items, item)
	}

	return items, nil
}

// UpdateStatus 更新论文的处理状态和备注
func (q *LocalQueue) UpdateStatus(ctx context.Context, paperID string, status string, note string) error {
	err := q.repo.UpdateStatus(paperID, models.PaperStatus(status), "")
	if err != nil {
		if errors.Is(err, repository.ErrPaperNotFound) {
			return ErrPaperNotInQueue
		}
		return err
	}

	if note != "" {
		paper, err := q.repo.GetByID(paperID)
		if err != nil {
			return err
		}
		return q.repo.RecordResult(paperID, paper.LastRunID, paper.ChunkCount, note)
	}
	return nil
}

// Close 关闭队列
func (q *LocalQueue) Close() error {
	return nil
}
