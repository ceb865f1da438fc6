package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpumodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// 文本层少于该字符数的页面视为空页，走OCR回退
const minTextLayerChars = 20

// 行间垂直距离超过该值时开启新的文本块
const blockGapThreshold = 18

// captionPattern 图注行的识别模式
var captionPattern = regexp.MustCompile(`(?i)^(figure|fig\.|table)\s*\d+`)

// imageFilePattern 从pdfcpu导出的图像文件名中解析页码
var imageFilePattern = regexp.MustCompile(`_(\d+)_[^_.]+\.(png|jpe?g|tiff?)$`)

// PDFConfig PDF提取器配置
type PDFConfig struct {
	OCR          OCREngine      // OCR引擎，nil时禁用回退
	OCRThreshold float64        // 文本层置信度阈值，低于该值触发OCR回退
	ImageDir     string         // 提取图像的存放目录
	Logger       *logrus.Logger // 日志记录器
}

// PDFExtractor PDF内容提取器
// 优先使用文档内嵌文本层，空页回退到对页面图像的OCR识别
type PDFExtractor struct {
	ocr          OCREngine
	ocrThreshold float64
	imageDir     string
	logger       *logrus.Logger
}

// NewPDFExtractor 创建PDF提取器
func NewPDFExtractor(cfg PDFConfig) *PDFExtractor {
	if cfg.OCR == nil {
		cfg.OCR = NoopOCR{}
	}
	if cfg.OCRThreshold <= 0 {
		cfg.OCRThreshold = 0.5
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = filepath.Join(os.TempDir(), "paper_images")
	}
	return &PDFExtractor{
		ocr:          cfg.OCR,
		ocrThreshold: cfg.OCRThreshold,
		imageDir:     cfg.ImageDir,
		logger:       cfg.Logger,
	}
}

// Extract 解析PDF并返回文档顺序的内容块序列
// 页码升序，同页内按垂直位置排列
func (e *PDFExtractor) Extract(ctx context.Context, filePath string) ([]ContentBlock, error) {
	// 先校验整篇文档，损坏的文件在这里直接失败
	conf := pdfcpumodel.NewDefaultConfiguration()
	if err := api.ValidateFile(filePath, conf); err != nil {
		return nil, fmt.Errorf("pdf validation failed: %w", err)
	}

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	// 提取内嵌图像，按页分组
	pageImages := e.extractImages(filePath)

	var blocks []ContentBlock
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		pageBlocks := e.extractPage(ctx, reader, pageNum, pageImages[pageNum])
		blocks = append(blocks, pageBlocks...)
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("no content extracted from any page")
	}
	return blocks, nil
}

// extractPage 提取单页内容，任何页级失败都降级为低置信度空块
func (e *PDFExtractor) extractPage(ctx context.Context, reader *pdf.Reader, pageNum int, images []string) (blocks []ContentBlock) {
	// 格式异常的页面可能导致底层解析panic，降级处理
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"page":  pageNum,
				"panic": fmt.Sprint(r),
			}).Warn("Page extraction panicked, degrading to empty block")
			blocks = []ContentBlock{degradedBlock(pageNum)}
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		e.logger.WithField("page", pageNum).Warn("Page object missing, degrading to empty block")
		return []ContentBlock{degradedBlock(pageNum)}
	}

	textBlocks := e.textLayerBlocks(page, pageNum)

	// 文本层为空或过少时回退到OCR
	if totalTextLen(textBlocks) < minTextLayerChars {
		textBlocks = e.ocrFallback(ctx, pageNum, images)
	}

	// 公式识别：整块判定 + 块内候选提取
	caption := ""
	for i := range textBlocks {
		if textBlocks[i].Kind != KindText {
			continue
		}
		if IsFormulaBlock(textBlocks[i].Text) {
			textBlocks[i].Kind = KindFormula
			continue
		}
		if caption == "" && captionPattern.MatchString(textBlocks[i].Text) {
			caption = firstLine(textBlocks[i].Text)
		}
		for _, formula := range DetectFormulas(textBlocks[i].Text) {
			textBlocks = append(textBlocks, ContentBlock{
				Kind:       KindFormula,
				Page:       pageNum,
				Region:     textBlocks[i].Region,
				Text:       formula,
				Confidence: textBlocks[i].Confidence,
			})
		}
	}

	// 图像块：每张内嵌图像一个块，附带找到的图注
	for _, imgPath := range images {
		textBlocks = append(textBlocks, ContentBlock{
			Kind:       KindImage,
			Page:       pageNum,
			Text:       caption,
			ImagePath:  imgPath,
			Confidence: 1.0,
		})
	}

	return textBlocks
}

// textLayerBlocks 从页面文本层构造文本块
// 按行读取，行间距过大时切分为新块
func (e *PDFExtractor) textLayerBlocks(page pdf.Page, pageNum int) []ContentBlock {
	rows, err := page.GetTextByRow()
	if err != nil || len(rows) == 0 {
		// 行读取失败时回退到整页纯文本
		text, terr := page.GetPlainText(nil)
		if terr != nil || strings.TrimSpace(text) == "" {
			return nil
		}
		return []ContentBlock{{
			Kind:       KindText,
			Page:       pageNum,
			Text:       normalizeWhitespace(text),
			Confidence: 1.0,
		}}
	}

	// 行按垂直位置降序返回，保持阅读顺序
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Position > rows[j].Position
	})

	var blocks []ContentBlock
	var current strings.Builder
	var top, bottom int64

	flush := func() {
		text := normalizeWhitespace(current.String())
		if text != "" {
			blocks = append(blocks, ContentBlock{
				Kind:       KindText,
				Page:       pageNum,
				Region:     Region{Top: float64(top), Bottom: float64(bottom)},
				Text:       text,
				Confidence: 1.0,
			})
		}
		current.Reset()
	}

	var prevPos int64 = -1
	for _, row := range rows {
		rowText := rowString(row)
		if strings.TrimSpace(rowText) == "" {
			continue
		}
		if prevPos >= 0 && prevPos-row.Position > blockGapThreshold {
			flush()
		}
		if current.Len() == 0 {
			top = row.Position
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(rowText)
		bottom = row.Position
		prevPos = row.Position
	}
	flush()

	return blocks
}

// ocrFallback 文本层为空时对页面图像做OCR
// 始终至少返回一个块，OCR不可用时返回置信度为0的空块
func (e *PDFExtractor) ocrFallback(ctx context.Context, pageNum int, images []string) []ContentBlock {
	e.logger.WithField("page", pageNum).Warn("Empty text layer, falling back to OCR")

	if e.ocr.Available(ctx) && len(images) > 0 {
		var blocks []ContentBlock
		for _, imgPath := range images {
			text, conf, err := e.ocr.Recognize(ctx, imgPath)
			if err != nil {
				e.logger.WithFields(logrus.Fields{
					"page":  pageNum,
					"image": imgPath,
					"error": err.Error(),
				}).Warn("OCR recognition failed for page image")
				continue
			}
			text = normalizeWhitespace(text)
			if text == "" {
				continue
			}
			conf = clampConfidence(conf)
			// 低于置信度阈值的识别结果不进入流水线
			if conf < e.ocrThreshold {
				e.logger.WithFields(logrus.Fields{
					"page":       pageNum,
					"image":      imgPath,
					"confidence": conf,
					"threshold":  e.ocrThreshold,
				}).Warn("OCR confidence below threshold, discarding result")
				continue
			}
			kind := KindText
			if containsMathSymbol(text) && IsFormulaBlock(text) {
				kind = KindFormula
			}
			blocks = append(blocks, ContentBlock{
				Kind:       kind,
				Page:       pageNum,
				Text:       text,
				Confidence: conf,
			})
		}
		if len(blocks) > 0 {
			return blocks
		}
	}

	// OCR不可用或无结果：仍然产出一个空块，页面失败不传播
	return []ContentBlock{degradedBlock(pageNum)}
}

// extractImages 用pdfcpu导出内嵌图像并按页分组
// 图像提取失败只影响图像块，不影响文本提取
func (e *PDFExtractor) extractImages(filePath string) map[int][]string {
	result := make(map[int][]string)

	outDir := filepath.Join(e.imageDir, strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		e.logger.WithField("error", err.Error()).Warn("Failed to create image directory")
		return result
	}

	conf := pdfcpumodel.NewDefaultConfiguration()
	if err := api.ExtractImagesFile(filePath, outDir, nil, conf); err != nil {
		e.logger.WithField("error", err.Error()).Warn("Image extraction failed")
		return result
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return result
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := imageFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		pageNum, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		result[pageNum] = append(result[pageNum], filepath.Join(outDir, entry.Name()))
	}

	// 同页图像按文件名排序，保证顺序稳定
	for page := range result {
		sort.Strings(result[page])
	}
	return result
}

// degradedBlock 构造页面降级时的空文本块
func degradedBlock(pageNum int) ContentBlock {
	return ContentBlock{
		Kind:       KindText,
		Page:       pageNum,
		Text:       "",
		Confidence: 0,
	}
}

// rowString 拼接一行中的所有文本片段
func rowString(row *pdf.Row) string {
	var sb strings.Builder
	for _, word := range row.Content {
		sb.WriteString(word.S)
	}
	return sb.String()
}

// normalizeWhitespace 折叠连续空白字符
func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// firstLine 取文本的第一行
func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

// totalTextLen 统计文本块的总字符数
func totalTextLen(blocks []ContentBlock) int {
	total := 0
	for _, b := range blocks {
		total += len(b.Text)
	}
	return total
}

// clampConfidence 将置信度收敛到[0,1]
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
