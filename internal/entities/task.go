package entities

import (
	"strings"
	"time"
)

// 执行类型
const (
	ExecutionTypeSQL    = "sql"    // 标准 SQL 查询
	ExecutionTypeScript = "script" // 注册的自定义脚本函数
)

// 任务状态
const (
	TaskStatusActive   = "active"
	TaskStatusInactive = "inactive"
	TaskStatusDeleted  = "deleted"
)

// 导出方式
const (
	ExportMethodLocal   = "local"
	ExportMethodWebhook = "webhook"
	ExportMethodEmail   = "email"
)

// ExportTask 导出任务
type ExportTask struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	// 数据源配置
	DataSourceID   int    `json:"data_source_id"`
	DataSourceName string `json:"data_source_name,omitempty"`

	// 执行配置
	ExecutionType  string  `json:"execution_type"`
	SQLContent     *string `json:"sql_content,omitempty"`
	ScriptPath     *string `json:"script_path,omitempty"`
	ScriptFunction *string `json:"script_function,omitempty"`

	// 导出配置，多个导出方式用逗号分隔
	ExportMethods   *string `json:"export_methods,omitempty"`
	ExportFilename  *string `json:"export_filename,omitempty"`
	ExportSheetName *string `json:"export_sheet_name,omitempty"`

	// Webhook 配置
	WebhookURL             *string `json:"webhook_url,omitempty"`
	WebhookSecret          *string `json:"webhook_secret,omitempty"`
	WebhookMessageTemplate *string `json:"webhook_message_template,omitempty"`

	// 邮件配置，多个接收人用逗号分隔
	EmailRecipients *string `json:"email_recipients,omitempty"`
	EmailSubject    *string `json:"email_subject,omitempty"`
	EmailBody       *string `json:"email_body,omitempty"`

	// 定时配置
	CronExpression *string `json:"cron_expression,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`

	// 状态和时间
	Status            string     `json:"status"`
	LastExecutionTime *time.Time `json:"last_execution_time,omitempty"`
	CreatedBy         *string    `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsActive 检查任务是否启用
func (t *ExportTask) IsActive() bool {
	return t.Status == TaskStatusActive
}

// IsSchedulable 检查任务是否满足调度条件：启用且配置了 cron 表达式
func (t *ExportTask) IsSchedulable() bool {
	return t.IsActive() && t.CronExpression != nil && *t.CronExpression != ""
}

// GetSQLContent 获取 SQL 内容，未配置时返回空字符串
func (t *ExportTask) GetSQLContent() string {
	if t.SQLContent == nil {
		return ""
	}
	return *t.SQLContent
}

// GetExportMethods 获取导出方式列表
func (t *ExportTask) GetExportMethods() []string {
	if t.ExportMethods == nil || *t.ExportMethods == "" {
		return nil
	}
	parts := strings.Split(*t.ExportMethods, ",")
	methods := make([]string, 0, len(parts))
	for _, p := range parts {
		if m := strings.TrimSpace(p); m != "" {
			methods = append(methods, m)
		}
	}
	return methods
}

// HasExportMethod 检查任务是否配置了指定导出方式
func (t *ExportTask) HasExportMethod(method string) bool {
	for _, m := range t.GetExportMethods() {
		if m == method {
			return true
		}
	}
	return false
}

// GetEmailRecipients 获取邮件接收人列表
func (t *ExportTask) GetEmailRecipients() []string {
	if t.EmailRecipients == nil || *t.EmailRecipients == "" {
		return nil
	}
	parts := strings.Split(*t.EmailRecipients, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		if r := strings.TrimSpace(p); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}
