package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/paper-QA-pipeline/internal/extractor"
)

// textBlock 构造文本内容块的测试辅助函数
func textBlock(page int, text string) extractor.ContentBlock {
	return extractor.ContentBlock{
		Kind:       extractor.KindText,
		Page:       page,
		Text:       text,
		Confidence: 1.0,
	}
}

// TestClassifyHeadings 测试标题词表匹配
func TestClassifyHeadings(t *testing.T) {
	classifier := NewClassifier()

	blocks := []extractor.ContentBlock{
		textBlock(1, "Abstract This paper studies transformers."),
		textBlock(1, "1. Introduction Large language models have changed the field."),
		textBlock(2, "3 Methods We train on a large corpus."),
		textBlock(3, "4. Results Our model outperforms baselines."),
		textBlock(4, "Discussion The findings suggest several directions."),
		textBlock(5, "Conclusion We presented a new architecture."),
		textBlock(5, "References [1] Vaswani et al. Attention is all you need."),
	}

	secs := classifier.Classify(blocks)
	require.Len(t, secs, 7)

	expected := []SectionType{Abstract, Introduction, Methods, Results, Discussion, Conclusion, References}
	for i, sec := range secs {
		assert.Equal(t, expected[i], sec.Type)
		assert.Len(t, sec.Blocks, 1)
	}
}

// TestClassifyPositionPrior 测试位置先验：第一个文本块没有标题时默认为摘要
func TestClassifyPositionPrior(t *testing.T) {
	classifier := NewClassifier()

	blocks := []extractor.ContentBlock{
		textBlock(1, "This paper proposes a new approach to protein folding."),
		textBlock(1, "1. Introduction The problem has a long history."),
	}

	secs := classifier.Classify(blocks)
	require.Len(t, secs, 2)
	assert.Equal(t, Abstract, secs[0].Type)
	assert.Equal(t, Introduction, secs[1].Type)
}

// TestClassifyUnmatchedFallsToOther 测试未识别标题降级为other
func TestClassifyUnmatchedFallsToOther(t *testing.T) {
	classifier := NewClassifier()

	blocks := []extractor.ContentBlock{
		textBlock(1, "Abstract We study graphs."),
		textBlock(2, "Acknowledgements We thank the reviewers."),
	}

	secs := classifier.Classify(blocks)
	require.Len(t, secs, 1)
	// 未匹配的文本延续当前章节，不会凭空产生新章节
	assert.Equal(t, Abstract, secs[0].Type)
	assert.Len(t, secs[0].Blocks, 2)
}

// TestClassifyEveryBlockAssigned 测试每个块恰好属于一个章节
func TestClassifyEveryBlockAssigned(t *testing.T) {
	classifier := NewClassifier()

	blocks := []extractor.ContentBlock{
		textBlock(1, "Abstract We study things."),
		{Kind: extractor.KindFormula, Page: 1, Text: "E = mc^2", Confidence: 0.9},
		textBlock(2, "2. Methods The procedure is simple."),
		{Kind: extractor.KindImage, Page: 2, ImagePath: "/tmp/fig1.png", Text: "Figure 1"},
		textBlock(3, "Results The numbers are good."),
	}

	secs := classifier.Classify(blocks)

	total := 0
	for _, sec := range secs {
		total += len(sec.Blocks)
	}
	assert.Equal(t, len(blocks), total)

	// 非文本块归属于它出现时所在的章节
	require.Len(t, secs, 3)
	assert.Equal(t, Abstract, secs[0].Type)
	assert.Len(t, secs[0].Blocks, 2)
	assert.Equal(t, Methods, secs[1].Type)
	assert.Len(t, secs[1].Blocks, 2)
}

// TestClassifyReferencesStopsMatching 测试参考文献之后不再识别新标题
func TestClassifyReferencesStopsMatching(t *testing.T) {
	classifier := NewClassifier()

	blocks := []extractor.ContentBlock{
		textBlock(1, "References [1] Smith et al."),
		// 参考文献条目里的"Results"不应开启新章节
		textBlock(2, "[2] Jones. Results of a large survey. Journal 2020."),
	}

	secs := classifier.Classify(blocks)
	require.Len(t, secs, 1)
	assert.Equal(t, References, secs[0].Type)
	assert.Len(t, secs[0].Blocks, 2)
}

// TestClassifyEmpty 测试空输入
func TestClassifyEmpty(t *testing.T) {
	classifier := NewClassifier()
	assert.Nil(t, classifier.Classify(nil))
}

// TestSectionTypeValid 测试章节类型校验
func TestSectionTypeValid(t *testing.T) {
	assert.True(t, Abstract.Valid())
	assert.True(t, Other.Valid())
	assert.False(t, SectionType("appendix").Valid())
}
