package exporters

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/config"
	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/models"
	"com.duole/query-export-go/internal/services"
)

// ExportManager 统一的导出出口：落盘 Excel 文件，按任务配置
// 推送 Webhook 和邮件通知。
//
// 失败语义：文件落盘失败视为导出失败向上返回错误；
// 通知类失败只记录在结果里，不影响任务成败。
type ExportManager struct {
	outputDir     string
	retentionDays int
	excel         *ExcelWriter
	webhook       *WebhookNotifier
	email         *EmailSender
}

// NewExportManager 创建导出管理器并确保输出目录存在
func NewExportManager(cfg *config.Config) (*ExportManager, error) {
	if err := os.MkdirAll(cfg.Export.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建导出目录 '%s' 失败: %w", cfg.Export.OutputDir, err)
	}

	return &ExportManager{
		outputDir:     cfg.Export.OutputDir,
		retentionDays: cfg.Export.RetentionDays,
		excel:         NewExcelWriter(cfg.Export.OutputDir),
		webhook:       NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.FileServerURL),
		email:         NewEmailSender(cfg.Email),
	}, nil
}

var _ services.ExportSink = (*ExportManager)(nil)

// ExportSingle 导出单结果集任务
func (m *ExportManager) ExportSingle(task *entities.ExportTask, data *models.ResultSet, logDraft *entities.ExecutionLog) (*models.ExportResult, error) {
	sheetName := ""
	if task.ExportSheetName != nil {
		sheetName = *task.ExportSheetName
	}

	filename := GenerateFilename(stringValue(task.ExportFilename), task.Name, time.Now())
	path, err := m.excel.WriteSingle(filename, sheetName, data)
	if err != nil {
		return nil, err
	}

	return m.finish(task, path, data.Len(), logDraft)
}

// ExportMultiple 导出多结果集任务，每个结果集一个 sheet
func (m *ExportManager) ExportMultiple(task *entities.ExportTask, datasets map[string]*models.ResultSet, logDraft *entities.ExecutionLog) (*models.ExportResult, error) {
	order := make([]string, 0, len(datasets))
	for name := range datasets {
		order = append(order, name)
	}
	sort.Strings(order)

	filename := GenerateFilename(stringValue(task.ExportFilename), task.Name, time.Now())
	path, err := m.excel.WriteMultiple(filename, datasets, order)
	if err != nil {
		return nil, err
	}

	rows := 0
	for _, rs := range datasets {
		rows += rs.Len()
	}
	return m.finish(task, path, rows, logDraft)
}

// finish 文件已落盘，按任务配置补齐通知动作
func (m *ExportManager) finish(task *entities.ExportTask, path string, rowCount int, logDraft *entities.ExecutionLog) (*models.ExportResult, error) {
	result := &models.ExportResult{
		FileExported: true,
		FilePath:     path,
	}
	if info, err := os.Stat(path); err == nil {
		result.FileSize = info.Size()
	}

	log.Info().Str("task", task.Name).Str("file", path).Int("rows", rowCount).
		Str("size", FormatFileSize(result.FileSize)).Msg("导出文件已生成")

	if task.HasExportMethod(entities.ExportMethodWebhook) {
		if err := m.sendSuccessWebhook(task, path, rowCount, logDraft); err != nil {
			log.Warn().Str("task", task.Name).Err(err).Msg("Webhook通知发送失败")
			result.Errors = append(result.Errors, "Webhook通知失败: "+err.Error())
		} else {
			result.WebhookSent = true
		}
	}

	if task.HasExportMethod(entities.ExportMethodEmail) {
		if err := m.sendSuccessEmail(task, path, rowCount); err != nil {
			log.Warn().Str("task", task.Name).Err(err).Msg("邮件通知发送失败")
			result.Errors = append(result.Errors, "邮件通知失败: "+err.Error())
		} else {
			result.EmailSent = true
		}
	}

	return result, nil
}

func (m *ExportManager) sendSuccessWebhook(task *entities.ExportTask, path string, rowCount int, logDraft *entities.ExecutionLog) error {
	duration := ""
	if logDraft != nil {
		duration = entities.FormatDuration(time.Since(logDraft.StartTime).Seconds())
	}
	return m.webhook.SendSuccess(
		stringValue(task.WebhookURL),
		stringValue(task.WebhookSecret),
		stringValue(task.WebhookMessageTemplate),
		task.Name, path, rowCount, duration,
	)
}

func (m *ExportManager) sendSuccessEmail(task *entities.ExportTask, path string, rowCount int) error {
	subject := stringValue(task.EmailSubject)
	if subject == "" {
		subject = fmt.Sprintf("数据导出完成: %s", task.Name)
	}
	body := stringValue(task.EmailBody)
	if body == "" {
		body = fmt.Sprintf("任务 '%s' 执行完成。\n\n数据行数: %d\n导出文件: %s\n完成时间: %s\n",
			task.Name, rowCount, filepath.Base(path), time.Now().Format("2006-01-02 15:04:05"))
	}
	return m.email.SendWithAttachment(task.GetEmailRecipients(), subject, body, path)
}

// SendFailureNotification 发送任务失败通知，尽力而为
func (m *ExportManager) SendFailureNotification(task *entities.ExportTask, errorInfo services.FailureInfo, logDraft *entities.ExecutionLog) {
	if task.HasExportMethod(entities.ExportMethodWebhook) && m.webhook.Configured(stringValue(task.WebhookURL)) {
		err := m.webhook.SendFailure(
			stringValue(task.WebhookURL),
			stringValue(task.WebhookSecret),
			task.Name, errorInfo.ExecutionTime, errorInfo.ErrorType, errorInfo.ErrorMessage, errorInfo.Duration,
		)
		if err != nil {
			log.Warn().Str("task", task.Name).Err(err).Msg("失败Webhook通知发送失败")
		}
	}

	if task.HasExportMethod(entities.ExportMethodEmail) && m.email.Configured() {
		subject := fmt.Sprintf("数据导出失败: %s", task.Name)
		body := fmt.Sprintf("任务 '%s' 执行失败。\n\n开始时间: %s\n错误类型: %s\n错误信息: %s\n执行耗时: %s\n",
			task.Name, errorInfo.ExecutionTime, errorInfo.ErrorType, errorInfo.ErrorMessage, errorInfo.Duration)
		if err := m.email.SendWithAttachment(task.GetEmailRecipients(), subject, body, ""); err != nil {
			log.Warn().Str("task", task.Name).Err(err).Msg("失败邮件通知发送失败")
		}
	}
}

// CleanupOldFiles 删除超出保留期的导出文件，返回删除数量
func (m *ExportManager) CleanupOldFiles() int {
	cutoff := time.Now().AddDate(0, 0, -m.retentionDays)

	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		log.Warn().Str("dir", m.outputDir).Err(err).Msg("读取导出目录失败")
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".xlsx" {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(m.outputDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn().Str("file", path).Err(err).Msg("删除过期文件失败")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Int("retention_days", m.retentionDays).Msg("过期导出文件清理完成")
	}
	return removed
}

// FormatFileSize 人类可读的文件大小
func FormatFileSize(size int64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(size)/(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
