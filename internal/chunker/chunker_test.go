package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/paper-QA-pipeline/internal/extractor"
	"github.com/fyerfyer/paper-QA-pipeline/internal/sections"
)

// TestChunkIDDeterministic 测试分块ID的确定性
func TestChunkIDDeterministic(t *testing.T) {
	id1 := ChunkID("paper-1", sections.Methods, 0)
	id2 := ChunkID("paper-1", sections.Methods, 0)
	assert.Equal(t, id1, id2)

	// 不同输入必须产生不同ID
	assert.NotEqual(t, id1, ChunkID("paper-1", sections.Methods, 1))
	assert.NotEqual(t, id1, ChunkID("paper-1", sections.Results, 0))
	assert.NotEqual(t, id1, ChunkID("paper-2", sections.Methods, 0))
}

// TestChunkSizeBound 测试所有文本分块不超过配置大小
func TestChunkSizeBound(t *testing.T) {
	c := NewChunker(Config{ChunkSize: 100, ChunkOverlap: 20})

	long := strings.Repeat("word ", 200)
	secs := []sections.Section{{
		Type: sections.Introduction,
		Blocks: []extractor.ContentBlock{
			{Kind: extractor.KindText, Page: 1, Text: long, Confidence: 1.0},
		},
	}}

	chunks := c.Chunk("paper-1", secs)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 100)
		assert.Equal(t, ModalityText, chunk.Modality)
		assert.Equal(t, sections.Introduction, chunk.SectionType)
	}
}

// TestChunkExactOverlap 测试相邻分块精确共享重叠字符
func TestChunkExactOverlap(t *testing.T) {
	c := NewChunker(Config{ChunkSize: 50, ChunkOverlap: 10})

	text := strings.Repeat("abcdefghij", 20) // 200个字符
	secs := []sections.Section{{
		Type: sections.Methods,
		Blocks: []extractor.ContentBlock{
			{Kind: extractor.KindText, Page: 1, Text: text, Confidence: 1.0},
		},
	}}

	chunks := c.Chunk("paper-1", secs)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		tail := prev[len(prev)-10:]
		assert.True(t, strings.HasPrefix(chunks[i].Text, tail),
			"chunk %d should start with the last 10 chars of chunk %d", i, i-1)
	}
}

// TestChunkDoesNotCrossSections 测试文本分块不跨章节
func TestChunkDoesNotCrossSections(t *testing.T) {
	c := NewChunker(Config{ChunkSize: 1000, ChunkOverlap: 100})

	secs := []sections.Section{
		{
			Type: sections.Abstract,
			Blocks: []extractor.ContentBlock{
				{Kind: extractor.KindText, Page: 1, Text: "Short abstract.", Confidence: 1.0},
			},
		},
		{
			Type: sections.Introduction,
			Blocks: []extractor.ContentBlock{
				{Kind: extractor.KindText, Page: 1, Text: "Short introduction.", Confidence: 1.0},
			},
		},
	}

	chunks := c.Chunk("paper-1", secs)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Short abstract.", chunks[0].Text)
	assert.Equal(t, sections.Abstract, chunks[0].SectionType)
	assert.Equal(t, "Short introduction.", chunks[1].Text)
	assert.Equal(t, sections.Introduction, chunks[1].SectionType)
}

// TestChunkAtomicFormulaAndImage 测试公式和图像各自成为原子分块
func TestChunkAtomicFormulaAndImage(t *testing.T) {
	c := NewChunker(DefaultConfig())

	secs := []sections.Section{{
		Type: sections.Results,
		Blocks: []extractor.ContentBlock{
			{Kind: extractor.KindText, Page: 2, Text: "The loss decreases.", Confidence: 1.0},
			{Kind: extractor.KindFormula, Page: 2, Text: "L = -log p(x)", Confidence: 0.8},
			{Kind: extractor.KindImage, Page: 3, ImagePath: "/tmp/fig2.png", Text: "Figure 2: Loss curve", Confidence: 0.9},
		},
	}}

	chunks := c.Chunk("paper-1", secs)
	require.Len(t, chunks, 3)

	byModality := make(map[Modality]Chunk)
	for _, chunk := range chunks {
		byModality[chunk.Modality] = chunk
	}

	formula := byModality[ModalityFormula]
	assert.Equal(t, "L = -log p(x)", formula.Text)
	assert.Equal(t, 2, formula.Page)

	image := byModality[ModalityImage]
	assert.Equal(t, "Figure 2: Loss curve", image.Text)
	assert.Equal(t, 3, image.Page)

	text := byModality[ModalityText]
	assert.Equal(t, "The loss decreases.", text.Text)
}

// TestChunkIdempotentReRun 测试同一输入重新分块得到相同的ID集合
func TestChunkIdempotentReRun(t *testing.T) {
	c := NewChunker(Config{ChunkSize: 80, ChunkOverlap: 16})

	secs := []sections.Section{{
		Type: sections.Discussion,
		Blocks: []extractor.ContentBlock{
			{Kind: extractor.KindText, Page: 4, Text: strings.Repeat("discussion text ", 30), Confidence: 1.0},
			{Kind: extractor.KindFormula, Page: 4, Text: "x^2 + y^2 = z^2", Confidence: 0.7},
		},
	}}

	first := c.Chunk("paper-1", secs)
	second := c.Chunk("paper-1", secs)
	require.Equal(t, len(first), len(second))

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

// TestChunkerConfigDefaults 测试非法配置回退到默认值
func TestChunkerConfigDefaults(t *testing.T) {
	c := NewChunker(Config{ChunkSize: 0, ChunkOverlap: -1})
	assert.Equal(t, DefaultConfig().ChunkSize, c.config.ChunkSize)

	// 重叠不小于分块大小时修正为五分之一
	c = NewChunker(Config{ChunkSize: 100, ChunkOverlap: 100})
	assert.Equal(t, 20, c.config.ChunkOverlap)
}

// TestChunkEmptySections 测试空章节不产生分块
func TestChunkEmptySections(t *testing.T) {
	c := NewChunker(DefaultConfig())

	secs := []sections.Section{{
		Type: sections.Other,
		Blocks: []extractor.ContentBlock{
			{Kind: extractor.KindText, Page: 1, Text: "   ", Confidence: 0.1},
		},
	}}

	assert.Empty(t, c.Chunk("paper-1", secs))
}
