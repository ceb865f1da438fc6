package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaperStatus 论文处理状态类型
type PaperStatus string

const (
	// PaperStatusQueued 论文已入队，等待摄取
	PaperStatusQueued PaperStatus = "queued"
	// PaperStatusProcessing 论文摄取中
	PaperStatusProcessing PaperStatus = "processing"
	// PaperStatusDone 论文摄取完成，所有分块已写入向量索引
	PaperStatusDone PaperStatus = "done"
	// PaperStatusFailed 论文摄取失败
	PaperStatusFailed PaperStatus = "failed"
)

// Paper 论文数据模型
// 记录每篇论文的来源和摄取生命周期
type Paper struct {
	ID          string         `gorm:"primaryKey"`         // 论文ID，由来源路径派生，主键
	Title       string         `gorm:"not null"`           // 论文标题
	Source      string         `gorm:"not null"`           // 来源定位符（本地路径或对象存储键）
	Status      PaperStatus    `gorm:"not null;index"`     // 摄取状态
	Error       string         `gorm:"type:text"`          // 最近一次失败的错误信息
	Note        string         `gorm:"type:text"`          // 最近一次处理的结果备注
	ChunkCount  int            `gorm:"not null;default:0"` // 写入索引的分块数量
	LastRunID   string         `gorm:"size:50;index"`      // 最近处理此论文的运行ID
	QueuedAt    time.Time      `gorm:"not null;index"`     // 入队时间
	ProcessedAt *time.Time     `gorm:"index"`              // 摄取完成时间
	UpdatedAt   time.Time      `gorm:"not null;index"`     // 更新时间
	Metadata    datatypes.JSON `gorm:"type:json"`          // 元数据（作者、年份等），JSON格式
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (p *Paper) BeforeCreate(tx *gorm.DB) (err error) {
	if p.QueuedAt.IsZero() {
		p.QueuedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	if p.Status == "" {
		p.Status = PaperStatusQueued
	}
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (p *Paper) BeforeUpdate(tx *gorm.DB) (err error) {
	p.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Paper) TableName() string {
	return "papers"
}

// IsTerminal 判断状态是否为终态
func (s PaperStatus) IsTerminal() bool {
	return s == PaperStatusDone || s == PaperStatusFailed
}
