package exporters

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"com.duole/query-export-go/internal/config"
	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/models"
)

func newTestManager(t *testing.T) *ExportManager {
	t.Helper()
	cfg := config.Default()
	cfg.Export.OutputDir = t.TempDir()
	cfg.Export.RetentionDays = 7

	m, err := NewExportManager(cfg)
	require.NoError(t, err)
	return m
}

func TestExportSingleLocal(t *testing.T) {
	m := newTestManager(t)

	task := &entities.ExportTask{
		Name:          "每日导出",
		ExportMethods: ptr("local"),
	}
	data := &models.ResultSet{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{1, "alice"}, {2, "bob"}},
	}

	result, err := m.ExportSingle(task, data, entities.NewExecutionLog(1, "e", "cron"))
	require.NoError(t, err)

	assert.True(t, result.FileExported)
	assert.False(t, result.WebhookSent)
	assert.False(t, result.EmailSent)
	assert.Positive(t, result.FileSize)

	info, err := os.Stat(result.FilePath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), result.FileSize)
}

func TestExportMultipleSortsSheets(t *testing.T) {
	m := newTestManager(t)

	task := &entities.ExportTask{Name: "多表导出", ExportMethods: ptr("local")}
	datasets := map[string]*models.ResultSet{
		"b_orders": {Columns: []string{"id"}, Rows: [][]any{{1}}},
		"a_users":  {Columns: []string{"id"}, Rows: [][]any{{1}, {2}}},
	}

	result, err := m.ExportMultiple(task, datasets, entities.NewExecutionLog(1, "e", "cron"))
	require.NoError(t, err)
	assert.True(t, result.FileExported)
	assert.FileExists(t, result.FilePath)
}

func TestExportWebhookFailureDoesNotFailExport(t *testing.T) {
	m := newTestManager(t)

	// Webhook 方式已配置但没有可用地址，通知失败只体现在标记里
	task := &entities.ExportTask{
		Name:          "带通知导出",
		ExportMethods: ptr("local,webhook"),
	}
	data := &models.ResultSet{Columns: []string{"id"}, Rows: [][]any{{1}}}

	result, err := m.ExportSingle(task, data, entities.NewExecutionLog(1, "e", "cron"))
	require.NoError(t, err)
	assert.True(t, result.FileExported)
	assert.False(t, result.WebhookSent)
	assert.NotEmpty(t, result.Errors)
}

func TestCleanupOldFiles(t *testing.T) {
	m := newTestManager(t)

	oldFile := filepath.Join(m.outputDir, "old.xlsx")
	freshFile := filepath.Join(m.outputDir, "fresh.xlsx")
	otherFile := filepath.Join(m.outputDir, "notes.txt")
	for _, p := range []string{oldFile, freshFile, otherFile} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	stale := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))
	require.NoError(t, os.Chtimes(otherFile, stale, stale))

	removed := m.CleanupOldFiles()
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, freshFile)
	// 非导出文件不在清理范围内
	assert.FileExists(t, otherFile)
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.00 KB", FormatFileSize(1024))
	assert.Equal(t, "2.50 MB", FormatFileSize(int64(2.5*1024*1024)))
	assert.Equal(t, "1.00 GB", FormatFileSize(1<<30))
}

func TestSignURL(t *testing.T) {
	signed, err := signURL("https://oapi.example.com/robot/send?access_token=tok", "secret")
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "tok", q.Get("access_token"))
	assert.NotEmpty(t, q.Get("timestamp"))

	// 解析出的签名必须是原始 base64：重算一遍 HMAC 比对，
	// 如果值里还残留 %2B/%3D 说明被转义了两次，服务端验签必败
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(q.Get("timestamp") + "\n" + "secret"))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, q.Get("sign"))
	assert.NotContains(t, q.Get("sign"), "%")
}

func TestRenderTemplate(t *testing.T) {
	out := renderTemplate("任务 {task_name} 导出 {row_count} 行", map[string]string{
		"task_name": "每日用户",
		"row_count": "120",
	})
	assert.Equal(t, "任务 每日用户 导出 120 行", out)
}

func ptr(s string) *string { return &s }
