package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrPaperNotInQueue 论文不在队列中
var ErrPaperNotInQueue = errors.New("paper not in queue")

// PaperItem 队列中的一条待处理论文
type PaperItem struct {
	ID       string // 论文ID，队列未提供时从路径确定性派生
	Title    string // 论文标题
	Authors  string // 作者
	Year     string // 发表年份
	Path     string // PDF文件路径或对象存储键
	Priority int    // 处理优先级，越大越先处理
}

// PaperQueue 论文队列接口
// 摄取流水线从队列取待处理论文，并把处理结果写回队列
type PaperQueue interface {
	// Pending 返回所有待处理的论文
	Pending(ctx context.Context) ([]PaperItem, error)

	// UpdateStatus 更新论文的处理状态和备注
	// 论文不在队列中时返回ErrPaperNotInQueue
	UpdateStatus(ctx context.Context, paperID string, status string, note string) error

	// Close 关闭队列连接
	Close() error
}

// DerivePaperID 从文件路径确定性派生论文ID
// 队列行没填paper_id时使用，同一路径永远得到同一ID
func DerivePaperID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
}
