package queue

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// 队列表格的列名，顺序不限，按表头定位
const (
	colPaperID  = "paper_id"
	colTitle    = "paper_title"
	colAuthors  = "authors"
	colYear     = "publication_year"
	colPath     = "paper_path"
	colStatus   = "status"
	colNotes    = "notes"
	colPriority = "priority"
)

// SheetsQueue 基于Google Sheets的论文队列
// 研究团队直接在表格里登记论文，流水线把处理状态写回同一行
type SheetsQueue struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *logrus.Logger
}

// SheetsConfig Google Sheets队列配置
type SheetsConfig struct {
	CredentialsPath string // 服务账号凭证JSON文件路径
	SpreadsheetID   string // 表格ID
	SheetName       string // 工作表名称
}

// NewSheetsQueue 创建Google Sheets队列
func NewSheetsQueue(ctx context.Context, config SheetsConfig, logger *logrus.Logger) (*SheetsQueue, error) {
	if config.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	opts := []option.ClientOption{
		option.WithScopes(sheets.SpreadsheetsScope),
	}
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	sheetName := config.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	return &SheetsQueue{
		service:       service,
		spreadsheetID: config.SpreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// sheetSnapshot 一次读取的表格内容
type sheetSnapshot struct {
	columns map[string]int // 列名到列号的映射 (0-based)
	rows    [][]interface{}
}

// read 读取整个工作表并解析表头
func (q *SheetsQueue) read(ctx context.Context) (*sheetSnapshot, error) {
	readRange := fmt.Sprintf("%s!A1:Z", q.sheetName)
	resp, err := q.service.Spreadsheets.Values.Get(q.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", q.sheetName)
	}

	columns := make(map[string]int)
	for i, cell := range resp.Values[0] {
		name := strings.TrimSpace(strings.ToLower(fmt.Sprint(cell)))
		if name != "" {
			columns[name] = i
		}
	}
	if _, ok := columns[colPath]; !ok {
		return nil, fmt.Errorf("sheet %s has no %s column", q.sheetName, colPath)
	}

	return &sheetSnapshot{
		columns: columns,
		rows:    resp.Values[1:],
	}, nil
}

// cell 按列名取单元格内容，缺失时返回空串
func (s *sheetSnapshot) cell(row []interface{}, column string) string {
	idx, ok := s.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

// itemID 取行的论文ID，没填时从路径派生
func (s *sheetSnapshot) itemID(row []interface{}) string {
	if id := s.cell(row, colPaperID); id != "" {
		return id
	}
	if path := s.cell(row, colPath); path != "" {
		return DerivePaperID(path)
	}
	return ""
}

// pendingItems 从表格快照中取出待处理论文
// 高优先级在前，同优先级保持表格中的行顺序
func pendingItems(snapshot *sheetSnapshot) []PaperItem {
	var items []PaperItem
	for _, row := range snapshot.rows {
		status := strings.ToLower(snapshot.cell(row, colStatus))
		if status != "" && status != "queued" {
			continue
		}

		path := snapshot.cell(row, colPath)
		if path == "" {
			continue
		}

		priority, _ := strconv.Atoi(snapshot.cell(row, colPriority))

		items = append(items, PaperItem{
			ID:       snapshot.itemID(row),
			Title:    snapshot.cell(row, colTitle),
			Authors:  snapshot.cell(row, colAuthors),
			Year:     snapshot.cell(row, colYear),
			Path:     path,
			Priority: priority,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority > items[j].Priority
	})
	return items
}

// Pending 返回状态为空或queued的论文
func (q *SheetsQueue) Pending(ctx context.Context) ([]PaperItem, error) {
	snapshot, err := q.read(ctx)
	if err != nil {
		return nil, err
	}

	items := pendingItems(snapshot)
	q.logger.WithField("pending", len(items)).Info("fetched pending papers from sheet")
	return items, nil
}

// UpdateStatus 更新论文状态和备注
// 每次写回前重新定位行，避免表格中途被人增删行导致写错位置
func (q *SheetsQueue) UpdateStatus(ctx context.Context, paperID string, status string, note string) error {
	snapshot, err := q.read(ctx)
	if err != nil {
		return err
	}

	rowIndex := -1
	for i, row := range snapshot.rows {
		if snapshot.itemID(row) == paperID {
			rowIndex = i
			break
		}
	}
	if rowIndex == -1 {
		return ErrPaperNotInQueue
	}

	// 表头占第1行，数据从第2行开始
	sheetRow := rowIndex + 2

	if err := q.writeCell(ctx, snapshot, sheetRow, colStatus, status); err != nil {
		return err
	}
	if note != "" {
		if err := q.writeCell(ctx, snapshot, sheetRow, colNotes, note); err != nil {
			return err
		}
	}

	q.logger.WithFields(logrus.Fields{
		"paper_id": paperID,
		"status":   status,
	}).Debug("updated paper status in sheet")

	return nil
}

// writeCell 写入单个单元格，列不存在时跳过
func (q *SheetsQueue) writeCell(ctx context.Context, snapshot *sheetSnapshot, sheetRow int, column string, value string) error {
	colIdx, ok := snapshot.columns[column]
	if !ok {
		q.logger.WithField("column", column).Warn("sheet column missing, skipping write")
		return nil
	}

	cellRange := fmt.Sprintf("%s!%s%d", q.sheetName, columnLetter(colIdx), sheetRow)
	_, err := q.service.Spreadsheets.Values.Update(q.spreadsheetID, cellRange, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update cell %s: %w", cellRange, err)
	}
	return nil
}

// columnLetter 将0-based列号转换为表格列字母
func columnLetter(index int) string {
	letters := ""
	for index >= 0 {
		letters = string(rune('A'+index%26)) + letters
		index = index/26 - 1
	}
	return letters
}

// Close 关闭队列
// Sheets服务无需显式断开
func (q *SheetsQueue) Close() error {
	return nil
}
