package entities

import (
	"fmt"
	"time"
)

// 执行状态。状态迁移是单向的：running 进入唯一一个终态后不再变化。
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusSuccess   = "success"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusCancelled = "cancelled"
)

// 触发方式
const (
	TriggeredByCron   = "cron"
	TriggeredByManual = "manual"
	TriggeredByAPI    = "api"
)

// ExecutionLog 任务执行日志，一次执行尝试对应一条记录。
// 由 TaskExecutor 在执行开始时创建，执行结束后由调用方负责落库。
type ExecutionLog struct {
	ID     int `json:"id"`
	TaskID int `json:"task_id"`

	// 执行信息
	ExecutionID string     `json:"execution_id"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	// Duration 执行时长（秒），进入终态时由 EndTime-StartTime 一次性计算
	Duration float64 `json:"duration"`

	// 执行结果
	RowsAffected   int     `json:"rows_affected"`
	OutputFilePath *string `json:"output_file_path,omitempty"`
	FileSize       int64   `json:"file_size"`

	// 错误信息
	ErrorMessage *string `json:"error_message,omitempty"`
	ErrorTrace   *string `json:"error_trace,omitempty"`

	// 导出结果
	ExportResults *string `json:"export_results,omitempty"`
	WebhookSent   bool    `json:"webhook_sent"`
	EmailSent     bool    `json:"email_sent"`

	TriggeredBy string    `json:"triggered_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewExecutionLog 创建 running 状态的执行日志，开始时间取当前时间
func NewExecutionLog(taskID int, executionID, triggeredBy string) *ExecutionLog {
	return &ExecutionLog{
		TaskID:      taskID,
		ExecutionID: executionID,
		Status:      ExecutionStatusRunning,
		StartTime:   time.Now(),
		TriggeredBy: triggeredBy,
	}
}

// MarkSuccess 标记执行成功
func (l *ExecutionLog) MarkSuccess(rowsAffected int, outputFilePath string, fileSize int64) {
	now := time.Now()
	l.Status = ExecutionStatusSuccess
	l.EndTime = &now
	l.Duration = now.Sub(l.StartTime).Seconds()
	l.RowsAffected = rowsAffected
	if outputFilePath != "" {
		l.OutputFilePath = &outputFilePath
	}
	l.FileSize = fileSize
}

// MarkFailed 标记执行失败
func (l *ExecutionLog) MarkFailed(errorMessage, errorTrace string) {
	now := time.Now()
	l.Status = ExecutionStatusFailed
	l.EndTime = &now
	l.Duration = now.Sub(l.StartTime).Seconds()
	l.ErrorMessage = &errorMessage
	if errorTrace != "" {
		l.ErrorTrace = &errorTrace
	}
}

// MarkCancelled 标记执行取消
func (l *ExecutionLog) MarkCancelled() {
	now := time.Now()
	l.Status = ExecutionStatusCancelled
	l.EndTime = &now
	l.Duration = now.Sub(l.StartTime).Seconds()
}

// IsRunning 检查是否正在执行
func (l *ExecutionLog) IsRunning() bool {
	return l.Status == ExecutionStatusRunning
}

// IsSuccess 检查是否执行成功
func (l *ExecutionLog) IsSuccess() bool {
	return l.Status == ExecutionStatusSuccess
}

// DurationStr 执行时长的可读表示
func (l *ExecutionLog) DurationStr() string {
	return FormatDuration(l.Duration)
}

// FormatDuration 格式化执行时长
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.2f秒", seconds)
	case seconds < 3600:
		minutes := int(seconds) / 60
		return fmt.Sprintf("%d分%.2f秒", minutes, seconds-float64(minutes*60))
	default:
		hours := int(seconds) / 3600
		minutes := (int(seconds) % 3600) / 60
		return fmt.Sprintf("%d小时%d分%.2f秒", hours, minutes, seconds-float64(hours*3600+minutes*60))
	}
}
