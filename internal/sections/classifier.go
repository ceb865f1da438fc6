package sections

import (
	"regexp"
	"strings"

	"github.com/fyerfyer/paper-QA-pipeline/internal/extractor"
)

// SectionType 论文逻辑章节类型
type SectionType string

const (
	// Abstract 摘要
	Abstract SectionType = "abstract"
	// Introduction 引言
	Introduction SectionType = "introduction"
	// Methods 方法
	Methods SectionType = "methods"
	// Results 结果
	Results SectionType = "results"
	// Discussion 讨论
	Discussion SectionType = "discussion"
	// Conclusion 结论
	Conclusion SectionType = "conclusion"
	// References 参考文献
	References SectionType = "references"
	// Other 未识别章节的兜底类型
	Other SectionType = "other"
)

// Section 一段连续的内容块及其章节标签
type Section struct {
	Type   SectionType              // 章节类型
	Blocks []extractor.ContentBlock // 属于该章节的内容块，文档顺序
}

// headingRule 标题匹配规则
type headingRule struct {
	pattern *regexp.Regexp
	typ     SectionType
}

// 标题词表，按文档顺序扫描时第一个匹配的规则生效
// 允许编号前缀，如 "1. Introduction" 或 "第3节 Methods"
var headingRules = []headingRule{
	{regexp.MustCompile(`(?i)^\s*(\d+[.)]?\s*)?abstract\b`), Abstract},
	{regexp.MustCompile(`(?i)^\s*(\d+[.)]?\s*)?introduction\b`), Introduction},
	{regexp.MustCompile(`(?i)^\s*(\d+[.)]?\s*)?(methods?|methodology|materials and methods)\b`), Methods},
	{regexp.MustCompile(`(?i)^\s*(\d+[.)]?\s*)?(results?|experiments?|evaluation)\b`), Results},
	{regexp.MustCompile(`(?i)^\s*(\d+[.)]?\s*)?discussion\b`), Discussion},
	{regexp.MustCompile(`(?i)^\s*(\d+[.)]?\s*)?(conclusions?|concluding remarks)\b`), Conclusion},
	{regexp.MustCompile(`(?i)^\s*(\d+[.)]?\s*)?(references|bibliography)\b`), References},
}

// Classifier 章节分类器
// 结合标题词表匹配和位置先验，分类从不失败，未匹配区域降级为other
type Classifier struct{}

// NewClassifier 创建章节分类器
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify 将有序内容块划分为章节
// 不变式：每个文本块恰好属于一个章节，章节边界随文档顺序单调
func (c *Classifier) Classify(blocks []extractor.ContentBlock) []Section {
	if len(blocks) == 0 {
		return nil
	}

	var result []Section
	current := Section{Type: Other}
	sawText := false
	afterReferences := false

	appendSection := func() {
		if len(current.Blocks) > 0 {
			result = append(result, current)
		}
	}

	for _, block := range blocks {
		if block.Kind == extractor.KindText {
			if typ, ok := matchHeading(block.Text); ok && !afterReferences {
				if typ == References {
					afterReferences = true
				}
				// 同类型的重复标题延续当前章节，不新开
				if typ != current.Type || len(current.Blocks) == 0 {
					appendSection()
					current = Section{Type: typ}
				}
				current.Blocks = append(current.Blocks, block)
				sawText = true
				continue
			}

			// 位置先验：第一个文本块未匹配任何标题时默认为摘要
			if !sawText && current.Type == Other && len(current.Blocks) == 0 {
				current.Type = Abstract
			}
			sawText = true
		}

		current.Blocks = append(current.Blocks, block)
	}
	appendSection()

	return result
}

// matchHeading 判断文本是否以章节标题开头
// 模式锚定在块首，提取器常把标题和首段合并成同一个块
func matchHeading(text string) (SectionType, bool) {
	line := strings.TrimSpace(text)
	if line == "" {
		return "", false
	}
	for _, rule := range headingRules {
		if rule.pattern.MatchString(line) {
			return rule.typ, true
		}
	}
	return "", false
}

// Valid 判断章节类型是否为已知值
func (t SectionType) Valid() bool {
	switch t {
	case Abstract, Introduction, Methods, Results, Discussion, Conclusion, References, Other:
		return true
	}
	return false
}
