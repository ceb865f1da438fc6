package extractor

import "context"

// BlockKind 内容块的类型
type BlockKind string

const (
	// KindText 正文文本块
	KindText BlockKind = "text"
	// KindFormula 公式块
	KindFormula BlockKind = "formula"
	// KindImage 图像块
	KindImage BlockKind = "image"
)

// Region 块在页面上的大致区域
// 坐标来自文本行位置，图像块只有页级区域
type Region struct {
	Top    float64 // 上边界（页面坐标）
	Bottom float64 // 下边界
}

// ContentBlock 从PDF中提取出的内容单元
// 按文档顺序排列：页码升序，同页内按垂直位置
type ContentBlock struct {
	Kind       BlockKind // 块类型
	Page       int       // 页码（从1开始）
	Region     Region    // 页面区域
	Text       string    // 文本内容（图像块为空或为标题文字）
	ImagePath  string    // 图像文件路径（仅图像块）
	Confidence float64   // 提取置信度（0-1），OCR回退路径的块置信度较低
}

// Extractor 内容提取器接口
// 负责将一个PDF解析为有序的内容块序列
type Extractor interface {
	// Extract 解析PDF并返回文档顺序的内容块
	// 单页失败降级为低置信度空块，整篇文档不可读返回错误
	Extract(ctx context.Context, filePath string) ([]ContentBlock, error)
}

// OCREngine 光学字符识别引擎接口
// 文本层为空或置信度不足时的回退能力，通过外部服务实现
type OCREngine interface {
	// Recognize 识别图像文件中的文字，返回文本和置信度
	Recognize(ctx context.Context, imagePath string) (string, float64, error)

	// Available 判断引擎当前是否可用
	Available(ctx context.Context) bool
}
