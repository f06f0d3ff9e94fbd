package exporters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"com.duole/query-export-go/internal/models"
)

func sampleResultSet() *models.ResultSet {
	return &models.ResultSet{
		Columns: []string{"id", "name", "created"},
		Rows: [][]any{
			{1, "alice", time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
			{2, []byte("bob"), nil},
		},
	}
}

func TestWriteSingle(t *testing.T) {
	w := NewExcelWriter(t.TempDir())

	path, err := w.WriteSingle("users.xlsx", "用户", sampleResultSet())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"用户"}, f.GetSheetList())

	rows, err := f.GetRows("用户")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "name", "created"}, rows[0])
	assert.Equal(t, "alice", rows[1][1])
	// []byte 和 NULL 都被规整为文本
	assert.Equal(t, "bob", rows[2][1])
}

func TestWriteSingleDefaultSheet(t *testing.T) {
	w := NewExcelWriter(t.TempDir())

	path, err := w.WriteSingle("out.xlsx", "", sampleResultSet())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Sheet1"}, f.GetSheetList())
}

func TestWriteMultiple(t *testing.T) {
	w := NewExcelWriter(t.TempDir())

	datasets := map[string]*models.ResultSet{
		"用户": {Columns: []string{"id"}, Rows: [][]any{{1}, {2}}},
		"城市": {Columns: []string{"city"}, Rows: [][]any{{"hangzhou"}}},
	}

	path, err := w.WriteMultiple("combo.xlsx", datasets, []string{"用户", "城市"})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"用户", "城市"}, f.GetSheetList())

	rows, err := f.GetRows("城市")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "hangzhou", rows[1][0])
}

func TestGenerateFilename(t *testing.T) {
	now := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)

	assert.Equal(t, "每日用户_20260828.xlsx", GenerateFilename("", "每日用户", now))
	assert.Equal(t, "orders_20260828.xlsx", GenerateFilename("orders_{date}", "忽略", now))
	assert.Equal(t, "orders_20260828_143005.xlsx", GenerateFilename("orders_{datetime}", "忽略", now))
	// 已带后缀时不重复追加
	assert.Equal(t, "fixed.xlsx", GenerateFilename("fixed.xlsx", "忽略", now))
	assert.Equal(t, "Upper.XLSX", GenerateFilename("Upper.XLSX", "忽略", now))
}

func TestNormalizeCell(t *testing.T) {
	assert.Equal(t, "", normalizeCell(nil))
	assert.Equal(t, "2026-08-01 10:00:00", normalizeCell(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "raw", normalizeCell([]byte("raw")))
	assert.Equal(t, 42, normalizeCell(42))
}
