package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSnapshot 构造测试用的表格快照
func newTestSnapshot(header []string, rows [][]interface{}) *sheetSnapshot {
	columns := make(map[string]int)
	for i, name := range header {
		columns[name] = i
	}
	return &sheetSnapshot{columns: columns, rows: rows}
}

// TestPendingItemsFiltersByStatus 测试只返回待处理状态的行
func TestPendingItemsFiltersByStatus(t *testing.T) {
	snapshot := newTestSnapshot(
		[]string{"paper_id", "paper_path", "status"},
		[][]interface{}{
			{"p1", "papers/a.pdf", ""},
			{"p2", "papers/b.pdf", "queued"},
			{"p3", "papers/c.pdf", "done"},
			{"p4", "papers/d.pdf", "failed"},
			{"p5", "", "queued"}, // 没有路径的行被跳过
		},
	)

	items := pendingItems(snapshot)
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ID)
	assert.Equal(t, "p2", items[1].ID)
}

// TestPendingItemsPriorityOrder 测试按优先级降序返回
func TestPendingItemsPriorityOrder(t *testing.T) {
	snapshot := newTestSnapshot(
		[]string{"paper_id", "paper_path", "status", "priority"},
		[][]interface{}{
			{"low", "papers/low.pdf", "queued", "1"},
			{"none", "papers/none.pdf", "queued", ""},
			{"high", "papers/high.pdf", "queued", "5"},
			{"also-none", "papers/also.pdf", "queued", "not a number"},
		},
	)

	items := pendingItems(snapshot)
	require.Len(t, items, 4)
	assert.Equal(t, "high", items[0].ID)
	assert.Equal(t, 5, items[0].Priority)
	assert.Equal(t, "low", items[1].ID)

	// 无优先级的行按表格行顺序排在后面
	assert.Equal(t, "none", items[2].ID)
	assert.Equal(t, "also-none", items[3].ID)
}

// TestPendingItemsDerivesID 测试缺少paper_id时从路径派生
func TestPendingItemsDerivesID(t *testing.T) {
	snapshot := newTestSnapshot(
		[]string{"paper_id", "paper_path", "paper_title", "authors", "publication_year"},
		[][]interface{}{
			{"", "papers/attention.pdf", "Attention Is All You Need", "Vaswani et al.", "2017"},
		},
	)

	items := pendingItems(snapshot)
	require.Len(t, items, 1)
	assert.Equal(t, DerivePaperID("papers/attention.pdf"), items[0].ID)
	assert.Equal(t, "Attention Is All You Need", items[0].Title)
	assert.Equal(t, "Vaswani et al.", items[0].Authors)
	assert.Equal(t, "2017", items[0].Year)
}

// TestColumnLetter 测试列号到表格列字母的转换
func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", columnLetter(0))
	assert.Equal(t, "Z", columnLetter(25))
	assert.Equal(t, "AA", columnLetter(26))
	assert.Equal(t, "AB", columnLetter(27))
}
