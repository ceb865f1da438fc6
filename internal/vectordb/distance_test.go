package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComputeDistanceCosine 测试余弦距离
func TestComputeDistanceCosine(t *testing.T) {
	// 相同方向的向量距离为0
	dist, err := ComputeDistance([]float32{1, 0}, []float32{2, 0}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, dist, 1e-6)

	// 正交向量距离为1
	dist, err = ComputeDistance([]float32{1, 0}, []float32{0, 1}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dist, 1e-6)
}

// TestComputeDistanceEuclidean 测试欧氏距离
func TestComputeDistanceEuclidean(t *testing.T) {
	dist, err := ComputeDistance([]float32{0, 0}, []float32{3, 4}, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, dist, 1e-6)
}

// TestComputeDistanceMismatch 测试维度不一致报错
func TestComputeDistanceMismatch(t *testing.T) {
	_, err := ComputeDistance([]float32{1, 0}, []float32{1, 0, 0}, Cosine)
	assert.Error(t, err)
}

// TestDistanceToScore 测试距离到评分的转换
func TestDistanceToScore(t *testing.T) {
	// 余弦：距离0对应满分
	assert.InDelta(t, 1.0, DistanceToScore(0, Cosine), 1e-6)
	assert.InDelta(t, 0.0, DistanceToScore(1, Cosine), 1e-6)

	// 点积：[-1,1]映射到[0,1]
	assert.InDelta(t, 1.0, DistanceToScore(1, DotProduct), 1e-6)
	assert.InDelta(t, 0.5, DistanceToScore(0, DotProduct), 1e-6)

	// 欧氏：距离0对应满分，随距离衰减
	assert.InDelta(t, 1.0, DistanceToScore(0, Euclidean), 1e-6)
	assert.Greater(t, DistanceToScore(1, Euclidean), DistanceToScore(2, Euclidean))
}

// TestValidateVector 测试向量校验
func TestValidateVector(t *testing.T) {
	assert.NoError(t, ValidateVector([]float32{1, 2, 3}, 3))
	assert.ErrorIs(t, ValidateVector(nil, 3), ErrEmptyVector)
	assert.ErrorIs(t, ValidateVector([]float32{1, 2}, 3), ErrInvalidDimension)
}

// TestNormalizeVector 测试归一化
func TestNormalizeVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 1.0, float64(vectorNorm(v)), 1e-6)

	// 零向量原样返回
	zero := normalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

// TestMatchesFilter 测试载荷过滤
func TestMatchesFilter(t *testing.T) {
	p := Payload{PaperID: "paper-1", SectionType: "methods", Modality: "text"}

	assert.True(t, MatchesFilter(p, SearchFilter{}))
	assert.True(t, MatchesFilter(p, SearchFilter{PaperIDs: []string{"paper-1"}}))
	assert.False(t, MatchesFilter(p, SearchFilter{PaperIDs: []string{"paper-2"}}))
	assert.True(t, MatchesFilter(p, SearchFilter{SectionTypes: []string{"methods", "results"}}))
	assert.False(t, MatchesFilter(p, SearchFilter{Modalities: []string{"image"}}))
}

// TestPayloadRoundTrip 测试载荷与map的互转
func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{
		PaperID:      "paper-1",
		SectionType:  "results",
		Modality:     "formula",
		Text:         "E = mc^2",
		Page:         3,
		Position:     2,
		SourceLength: 8,
		Confidence:   0.85,
	}

	restored := PayloadFromMap(p.ToMap())
	assert.Equal(t, p, restored)
}
