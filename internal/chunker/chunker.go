package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fyerfyer/paper-QA-pipeline/internal/extractor"
	"github.com/fyerfyer/paper-QA-pipeline/internal/sections"
)

// Modality 分块的内容模态
type Modality string

const (
	// ModalityText 文本分块
	ModalityText Modality = "text"
	// ModalityFormula 公式分块
	ModalityFormula Modality = "formula"
	// ModalityImage 图像分块
	ModalityImage Modality = "image"
)

// chunkNamespace 分块ID的UUIDv5命名空间
// 固定值保证同一篇论文在相同配置下重新分块得到相同的ID集合
var chunkNamespace = uuid.MustParse("8a6e1f54-3c20-4b8e-9d2f-7f1a5b9c0e42")

// Chunk 持久化到向量索引的内容单元
// ID由论文ID、章节类型和序号确定性生成，重新摄取覆盖而不是追加
type Chunk struct {
	ID           string               // 确定性分块ID（UUIDv5）
	PaperID      string               // 所属论文ID
	Modality     Modality             // 内容模态
	SectionType  sections.SectionType // 所属章节类型
	Text         string               // 分块文本，非文本模态为图注/OCR替代文本
	Embedding    []float32            // 向量表示，由嵌入编码器填充
	Page         int                  // 页码
	Position     int                  // 章节内序号
	SourceLength int                  // 原始内容长度（字符数）
	Confidence   float64              // 提取置信度
}

// Config 分块器配置
type Config struct {
	ChunkSize    int // 文本分块的最大字符数
	ChunkOverlap int // 同章节相邻文本分块的重叠字符数
}

// DefaultConfig 返回默认分块配置
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Chunker 内容分块器
// 文本按章节内的长度和重叠切分，公式和图像各自成为原子分块
type Chunker struct {
	config Config
}

// NewChunker 创建分块器
func NewChunker(config Config) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultConfig().ChunkSize
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	return &Chunker{config: config}
}

// Chunk 将分类后的章节切分为有序分块
// 文本分块不跨章节边界，同章节内相邻分块保持配置的重叠
func (c *Chunker) Chunk(paperID string, secs []sections.Section) []Chunk {
	var chunks []Chunk

	// 每个章节类型维护独立的序号计数，保证ID的确定性
	seq := make(map[sections.SectionType]int)

	for _, sec := range secs {
		var textParts []string
		var textPage int
		var minConfidence = 1.0

		for _, block := range sec.Blocks {
			switch block.Kind {
			case extractor.KindText:
				if strings.TrimSpace(block.Text) == "" {
					continue
				}
				if len(textParts) == 0 {
					textPage = block.Page
				}
				textParts = append(textParts, block.Text)
				if block.Confidence < minConfidence {
					minConfidence = block.Confidence
				}
			case extractor.KindFormula:
				chunks = append(chunks, c.atomicChunk(paperID, sec.Type, block, ModalityFormula, seq))
			case extractor.KindImage:
				chunks = append(chunks, c.atomicChunk(paperID, sec.Type, block, ModalityImage, seq))
			}
		}

		// 章节文本合并后按长度和重叠切分
		sectionText := strings.Join(textParts, " ")
		for _, piece := range c.splitWithOverlap(sectionText) {
			idx := seq[sec.Type]
			seq[sec.Type]++
			chunks = append(chunks, Chunk{
				ID:           ChunkID(paperID, sec.Type, idx),
				PaperID:      paperID,
				Modality:     ModalityText,
				SectionType:  sec.Type,
				Text:         piece,
				Page:         textPage,
				Position:     idx,
				SourceLength: len(piece),
				Confidence:   minConfidence,
			})
		}
	}

	return chunks
}

// atomicChunk 将公式或图像块封装为单个原子分块
// 文本内容使用可用的图注或OCR替代文本，没有则为空串
func (c *Chunker) atomicChunk(paperID string, secType sections.SectionType, block extractor.ContentBlock, modality Modality, seq map[sections.SectionType]int) Chunk {
	idx := seq[secType]
	seq[secType]++
	return Chunk{
		ID:           ChunkID(paperID, secType, idx),
		PaperID:      paperID,
		Modality:     modality,
		SectionType:  secType,
		Text:         strings.TrimSpace(block.Text),
		Page:         block.Page,
		Position:     idx,
		SourceLength: len(block.Text),
		Confidence:   block.Confidence,
	}
}

// splitWithOverlap 按配置的大小和重叠切分文本
// 固定窗口滑动，相邻分块精确共享ChunkOverlap个字符
func (c *Chunker) splitWithOverlap(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.config.ChunkSize {
		return []string{text}
	}

	var pieces []string
	step := c.config.ChunkSize - c.config.ChunkOverlap

	for start := 0; start < len(text); start += step {
		end := start + c.config.ChunkSize
		if end >= len(text) {
			pieces = append(pieces, text[start:])
			break
		}
		pieces = append(pieces, text[start:end])
	}

	return pieces
}

// ChunkID 由论文ID、章节类型和序号确定性生成分块ID
// 相同输入永远得到相同的UUID，这是幂等重摄取的基础
func ChunkID(paperID string, secType sections.SectionType, index int) string {
	name := fmt.Sprintf("%s|%s|%d", paperID, secType, index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
