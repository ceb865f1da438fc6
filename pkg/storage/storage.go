package storage

import (
	"errors"
	"io"
)

// ErrFileNotFound 文件不存在
var ErrFileNotFound = errors.New("file not found in storage")

// FileInfo 论文源文件的元数据
type FileInfo struct {
	Path     string // 存储内的相对路径，作为文件的唯一键
	Name     string // 原始文件名
	Size     int64  // 文件大小(字节)
	MimeType string // 文件MIME类型
}

// Storage 论文源文件存储接口
// 队列中的paper_path直接作为存储键，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Save 保存文件到指定路径并返回文件信息
	Save(reader io.Reader, path string) (FileInfo, error)

	// Get 按路径获取文件内容
	Get(path string) (io.ReadCloser, error)

	// Delete 按路径删除文件
	Delete(path string) error

	// List 列出所有文件
	List() ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(path string) (bool, error)
}

// Factory 存储实现的工厂函数
// 用于根据配置创建不同类型的存储实现
type Factory func(cfg interface{}) (Storage, error)
