package extractor

import (
	"regexp"
	"strings"
	"unicode"
)

// 公式检测的正则模式，按优先级排列
// LaTeX定界符优先，其次是常见的等式形态和数学函数调用
var formulaPatterns = []*regexp.Regexp{
	// LaTeX风格
	regexp.MustCompile(`\$\$([^$]+)\$\$`),
	regexp.MustCompile(`\$([^$\n]+)\$`),
	regexp.MustCompile(`\\\[([^\]]+)\\\]`),
	regexp.MustCompile(`\\\(([^)]+)\\\)`),
	// 简单等式，如 y = f(x) + b
	regexp.MustCompile(`\b[A-Za-z]\s*=\s*[A-Za-z0-9+\-*/^()\[\]{}\s,.]{3,}`),
	// 数学函数调用
	regexp.MustCompile(`\b(sin|cos|tan|log|ln|exp|sqrt|sum|prod|int|lim)\s*\([^)]*\)`),
	// 上下标
	regexp.MustCompile(`[A-Za-z]_\{?[A-Za-z0-9]+\}?`),
	regexp.MustCompile(`[A-Za-z]\^\{?[A-Za-z0-9]+\}?`),
}

// 数学符号集合，用于符号密度判定
const mathSymbols = "∑∫∂∏√∞≠≤≥±×÷αβγδεζηθικλμνξπρστυφχψωΓΔΘΛΞΠΣΦΨΩ"

// minFormulaLen 过滤掉过短的匹配
const minFormulaLen = 3

// DetectFormulas 从文本中提取公式候选
// 返回去重后的公式文本，保持出现顺序
func DetectFormulas(text string) []string {
	var found []string
	seen := make(map[string]bool)

	for _, pattern := range formulaPatterns {
		matches := pattern.FindAllStringSubmatch(text, -1)
		for _, m := range matches {
			candidate := m[0]
			if len(m) > 1 && m[1] != "" {
				candidate = m[1]
			}
			candidate = strings.TrimSpace(candidate)
			if len(candidate) <= minFormulaLen {
				continue
			}
			if !seen[candidate] {
				seen[candidate] = true
				found = append(found, candidate)
			}
		}
	}

	return found
}

// IsFormulaBlock 判断一段文本整体是否像公式块
// 结合数学符号密度和空白密度的启发式
func IsFormulaBlock(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 {
		return false
	}

	var symbolCount, letterCount, total int
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if strings.ContainsRune(mathSymbols, r) || strings.ContainsRune("=+-*/^_{}()[]<>|", r) {
			symbolCount++
		} else if unicode.IsLetter(r) {
			letterCount++
		}
	}

	if total == 0 {
		return false
	}

	// 符号占比超过1/4且不是一段普通文字时判定为公式块
	density := float64(symbolCount) / float64(total)
	return density > 0.25 && letterCount < total/2
}

// containsMathSymbol 判断文本是否含有数学符号
// 用于过滤OCR结果里的公式痕迹
func containsMathSymbol(text string) bool {
	for _, r := range text {
		if strings.ContainsRune(mathSymbols, r) {
			return true
		}
	}
	return strings.ContainsAny(text, "=∑∫") ||
		strings.Contains(text, "sqrt") || strings.Contains(text, "lim")
}
