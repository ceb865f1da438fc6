package services

import (
	"fmt"
	"time"

	"github.com/fyerfyer/paper-QA-pipeline/internal/models"
)

// PaperResult 单篇论文的摄取结果
type PaperResult struct {
	PaperID    string             `json:"paper_id"`        // 论文ID
	Title      string             `json:"title"`           // 论文标题
	Status     models.PaperStatus `json:"status"`          // 最终状态
	ChunkCount int                `json:"chunk_count"`     // 写入索引的分块数量
	Formulas   int                `json:"formulas"`        // 公式分块数量
	Images     int                `json:"images"`          // 图像分块数量
	Error      string             `json:"error,omitempty"` // 失败原因
	Elapsed    time.Duration      `json:"elapsed"`         // 处理耗时
}

// RunReport 一次摄取运行的汇总报告
type RunReport struct {
	RunID      string        `json:"run_id"`      // 运行ID
	StartedAt  time.Time     `json:"started_at"`  // 开始时间
	FinishedAt time.Time     `json:"finished_at"` // 结束时间
	Results    []PaperResult `json:"results"`     // 每篇论文的结果
}

// Succeeded 统计成功的论文数量
func (r *RunReport) Succeeded() int {
	count := 0
	for _, result := range r.Results {
		if result.Status == models.PaperStatusDone {
			count++
		}
	}
	return count
}

// Failed 统计失败的论文数量
func (r *RunReport) Failed() int {
	count := 0
	for _, result := range r.Results {
		if result.Status == models.PaperStatusFailed {
			count++
		}
	}
	return count
}

// Summary 生成人类可读的运行摘要
func (r *RunReport) Summary() string {
	return fmt.Sprintf("run %s: %d papers processed, %d succeeded, %d failed, took %s",
		r.RunID, len(r.Results), r.Succeeded(), r.Failed(),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
