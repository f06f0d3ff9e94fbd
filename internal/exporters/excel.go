package exporters

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"com.duole/query-export-go/internal/models"
)

const defaultSheetName = "Sheet1"

// ExcelWriter 把查询结果集写成 xlsx 文件
type ExcelWriter struct {
	outputDir string
}

// NewExcelWriter 创建 Excel 写入器，文件统一落在 outputDir 下
func NewExcelWriter(outputDir string) *ExcelWriter {
	return &ExcelWriter{outputDir: outputDir}
}

// WriteSingle 把单个结果集写成一个 sheet 的 xlsx 文件，返回文件绝对路径
func (w *ExcelWriter) WriteSingle(filename, sheetName string, data *models.ResultSet) (string, error) {
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return w.write(filename, map[string]*models.ResultSet{sheetName: data}, []string{sheetName})
}

// WriteMultiple 把多个结果集写成多 sheet 的 xlsx 文件，sheet 顺序跟随 order
func (w *ExcelWriter) WriteMultiple(filename string, datasets map[string]*models.ResultSet, order []string) (string, error) {
	if len(order) == 0 {
		for name := range datasets {
			order = append(order, name)
		}
	}
	return w.write(filename, datasets, order)
}

func (w *ExcelWriter) write(filename string, datasets map[string]*models.ResultSet, order []string) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return "", fmt.Errorf("创建表头样式失败: %w", err)
	}

	for i, sheetName := range order {
		data, exists := datasets[sheetName]
		if !exists || data == nil {
			continue
		}

		if i == 0 {
			if err := f.SetSheetName(defaultSheetName, sheetName); err != nil {
				return "", fmt.Errorf("重命名工作表失败: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheetName); err != nil {
				return "", fmt.Errorf("创建工作表 '%s' 失败: %w", sheetName, err)
			}
		}

		if err := w.fillSheet(f, sheetName, data, headerStyle); err != nil {
			return "", err
		}
	}

	path := filepath.Join(w.outputDir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("保存文件 '%s' 失败: %w", path, err)
	}
	return path, nil
}

func (w *ExcelWriter) fillSheet(f *excelize.File, sheetName string, data *models.ResultSet, headerStyle int) error {
	header := make([]any, len(data.Columns))
	for i, col := range data.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	if len(data.Columns) > 0 {
		lastCol, err := excelize.CoordinatesToCellName(len(data.Columns), 1)
		if err != nil {
			return fmt.Errorf("计算表头范围失败: %w", err)
		}
		if err := f.SetCellStyle(sheetName, "A1", lastCol, headerStyle); err != nil {
			return fmt.Errorf("设置表头样式失败: %w", err)
		}
	}

	for rowIdx, row := range data.Rows {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err != nil {
			return fmt.Errorf("计算单元格坐标失败: %w", err)
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = normalizeCell(v)
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("写入第 %d 行失败: %w", rowIdx+1, err)
		}
	}
	return nil
}

// normalizeCell 把数据库返回的值转成 excelize 能直接落盘的类型
func normalizeCell(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case []byte:
		return string(val)
	default:
		return val
	}
}

// GenerateFilename 按任务配置生成导出文件名。
// 模板中的 {date} 和 {datetime} 占位符替换为当前时间，
// 未配置模板时用任务名加日期，统一保证 .xlsx 后缀。
func GenerateFilename(template, taskName string, now time.Time) string {
	name := template
	if name == "" {
		name = taskName + "_{date}"
	}
	name = strings.ReplaceAll(name, "{date}", now.Format("20060102"))
	name = strings.ReplaceAll(name, "{datetime}", now.Format("20060102_150405"))
	if !strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		name += ".xlsx"
	}
	return name
}
