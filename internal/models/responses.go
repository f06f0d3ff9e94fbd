package models

import "com.duole/query-export-go/internal/entities"

// TaskLogListResponse 执行日志分页响应
type TaskLogListResponse struct {
	Logs       []entities.ExecutionLog `json:"logs"`
	Total      int                     `json:"total"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"page_size"`
	TotalPages int                     `json:"total_pages"`
}

// TaskTestResult 任务试跑结果（不触发导出）
type TaskTestResult struct {
	Success       bool             `json:"success"`
	DataPreview   []map[string]any `json:"data_preview,omitempty"`
	RowCount      int              `json:"row_count"`
	Columns       []string         `json:"columns,omitempty"`
	ExecutionTime float64          `json:"execution_time"`
	Errors        []string         `json:"errors,omitempty"`
}

// TaskValidation 任务配置校验结果
type TaskValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ExportResult 导出落盘与通知结果，由导出管理器返回
type ExportResult struct {
	FileExported bool     `json:"file_exported"`
	WebhookSent  bool     `json:"webhook_sent"`
	EmailSent    bool     `json:"email_sent"`
	FilePath     string   `json:"file_path,omitempty"`
	FileSize     int64    `json:"file_size"`
	Errors       []string `json:"errors,omitempty"`
}

// SchedulerStats 调度器统计信息
type SchedulerStats struct {
	Running        bool   `json:"running"`
	TotalJobs      int    `json:"total_jobs"`
	ScheduledTasks int    `json:"scheduled_tasks"`
	ManualTasks    int    `json:"manual_tasks"`
	NextRunTime    string `json:"next_run_time,omitempty"`
	Timezone       string `json:"timezone"`
}

// TaskScheduleStatus 单个任务的调度状态
type TaskScheduleStatus struct {
	Scheduled   bool   `json:"scheduled"`
	JobName     string `json:"job_name,omitempty"`
	NextRunTime string `json:"next_run_time,omitempty"`
	Paused      bool   `json:"paused,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
