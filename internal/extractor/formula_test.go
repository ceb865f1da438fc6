package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDetectFormulasLatex 测试LaTeX定界符内的公式提取
func TestDetectFormulasLatex(t *testing.T) {
	found := DetectFormulas("The identity $$a + b = c$$ is used throughout.")
	require.NotEmpty(t, found)
	assert.Contains(t, found, "a + b = c")

	found = DetectFormulas("where $x_i + y_i$ denotes the pair sum")
	require.NotEmpty(t, found)
	assert.Contains(t, found, "x_i + y_i")
}

// TestDetectFormulasEquation 测试简单等式形态的识别
func TestDetectFormulasEquation(t *testing.T) {
	found := DetectFormulas("the model output is y = f(x) + b")
	require.NotEmpty(t, found)
	assert.True(t, strings.HasPrefix(found[0], "y = f(x)"))
}

// TestDetectFormulasFunctions 测试数学函数调用的识别
func TestDetectFormulasFunctions(t *testing.T) {
	found := DetectFormulas("we compute sqrt(2) as a constant")
	assert.Contains(t, found, "sqrt(2)")
}

// TestDetectFormulasDedupe 测试重复公式去重
func TestDetectFormulasDedupe(t *testing.T) {
	found := DetectFormulas("first $a + b = c$ then again $a + b = c$")

	count := 0
	for _, f := range found {
		if f == "a + b = c" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

// TestDetectFormulasShortFiltered 测试过短的匹配被过滤
func TestDetectFormulasShortFiltered(t *testing.T) {
	assert.Empty(t, DetectFormulas("$ab$"))
}

// TestDetectFormulasPlainText 测试普通文本不误报
func TestDetectFormulasPlainText(t *testing.T) {
	assert.Empty(t, DetectFormulas("This paragraph contains no mathematics at all"))
}

// TestIsFormulaBlock 测试公式块整体判定
func TestIsFormulaBlock(t *testing.T) {
	assert.True(t, IsFormulaBlock("x = (a + b) / 2"))
	assert.True(t, IsFormulaBlock("∑ x_i^2 ≤ ∫ f(t) dt"))

	assert.False(t, IsFormulaBlock("This is a normal sentence about papers."))
	assert.False(t, IsFormulaBlock(""))
	assert.False(t, IsFormulaBlock("   "))
}

// TestContainsMathSymbol 测试数学符号探测
func TestContainsMathSymbol(t *testing.T) {
	assert.True(t, containsMathSymbol("α + β"))
	assert.True(t, containsMathSymbol("take sqrt of the value"))
	assert.True(t, containsMathSymbol("a = b"))
	assert.False(t, containsMathSymbol("plain prose only"))
}
