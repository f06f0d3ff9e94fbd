package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"com.duole/query-export-go/internal/entities"
)

// TaskDB 导出任务数据库操作（空结构体）
type TaskDB struct{}

const taskColumns = `
	t.id, t.name, t.description, t.data_source_id,
	t.execution_type, t.sql_content, t.script_path, t.script_function,
	t.export_methods, t.export_filename, t.export_sheet_name,
	t.webhook_url, t.webhook_secret, t.webhook_message_template,
	t.email_recipients, t.email_subject, t.email_body,
	t.cron_expression, t.timezone,
	t.status, t.last_execution_time, t.created_by, t.created_at, t.updated_at`

func scanTask(scanner interface{ Scan(...any) error }) (*entities.ExportTask, error) {
	var task entities.ExportTask
	err := scanner.Scan(
		&task.ID, &task.Name, &task.Description, &task.DataSourceID,
		&task.ExecutionType, &task.SQLContent, &task.ScriptPath, &task.ScriptFunction,
		&task.ExportMethods, &task.ExportFilename, &task.ExportSheetName,
		&task.WebhookURL, &task.WebhookSecret, &task.WebhookMessageTemplate,
		&task.EmailRecipients, &task.EmailSubject, &task.EmailBody,
		&task.CronExpression, &task.Timezone,
		&task.Status, &task.LastExecutionTime, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetByID 根据 ID 获取任务（包含数据源名称）
func (d *TaskDB) GetByID(id int) (*entities.ExportTask, error) {
	query := `SELECT ` + taskColumns + `,
			COALESCE((SELECT name FROM data_sources WHERE id=t.data_source_id), '')
		FROM export_tasks t WHERE t.id=? AND t.status <> 'deleted'`

	var task entities.ExportTask
	err := db.QueryRow(query, id).Scan(
		&task.ID, &task.Name, &task.Description, &task.DataSourceID,
		&task.ExecutionType, &task.SQLContent, &task.ScriptPath, &task.ScriptFunction,
		&task.ExportMethods, &task.ExportFilename, &task.ExportSheetName,
		&task.WebhookURL, &task.WebhookSecret, &task.WebhookMessageTemplate,
		&task.EmailRecipients, &task.EmailSubject, &task.EmailBody,
		&task.CronExpression, &task.Timezone,
		&task.Status, &task.LastExecutionTime, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
		&task.DataSourceName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}

	return &task, nil
}

// List 获取任务列表，status 为空时返回全部未删除任务
func (d *TaskDB) List(status string) ([]entities.ExportTask, error) {
	query := `SELECT ` + taskColumns + ` FROM export_tasks t WHERE t.status <> 'deleted'`
	args := []any{}
	if status != "" {
		query += ` AND t.status=?`
		args = append(args, status)
	}
	query += ` ORDER BY t.id DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询任务列表失败: %w", err)
	}
	defer rows.Close()

	var tasks []entities.ExportTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描任务数据失败: %w", err)
		}
		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

// ListEligible 获取所有满足调度条件的任务：启用且配置了 cron 表达式
func (d *TaskDB) ListEligible() ([]entities.ExportTask, error) {
	query := `SELECT ` + taskColumns + ` FROM export_tasks t
		WHERE t.status='active' AND t.cron_expression IS NOT NULL AND t.cron_expression <> ''
		ORDER BY t.id`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("查询可调度任务失败: %w", err)
	}
	defer rows.Close()

	var tasks []entities.ExportTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描任务数据失败: %w", err)
		}
		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

// Create 创建任务
func (d *TaskDB) Create(task *entities.ExportTask) error {
	query := `INSERT INTO export_tasks(
			name, description, data_source_id,
			execution_type, sql_content, script_path, script_function,
			export_methods, export_filename, export_sheet_name,
			webhook_url, webhook_secret, webhook_message_template,
			email_recipients, email_subject, email_body,
			cron_expression, timezone, status, created_by)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	result, err := db.Exec(query,
		task.Name, task.Description, task.DataSourceID,
		task.ExecutionType, task.SQLContent, task.ScriptPath, task.ScriptFunction,
		task.ExportMethods, task.ExportFilename, task.ExportSheetName,
		task.WebhookURL, task.WebhookSecret, task.WebhookMessageTemplate,
		task.EmailRecipients, task.EmailSubject, task.EmailBody,
		task.CronExpression, task.Timezone, task.Status, task.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("创建任务失败: %w", err)
	}

	taskID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取任务ID失败: %w", err)
	}
	task.ID = int(taskID)

	return nil
}

// Update 更新任务
func (d *TaskDB) Update(task *entities.ExportTask) error {
	query := `UPDATE export_tasks SET
			name=?, description=?, data_source_id=?,
			execution_type=?, sql_content=?, script_path=?, script_function=?,
			export_methods=?, export_filename=?, export_sheet_name=?,
			webhook_url=?, webhook_secret=?, webhook_message_template=?,
			email_recipients=?, email_subject=?, email_body=?,
			cron_expression=?, timezone=?, status=?
		WHERE id=? AND status <> 'deleted'`

	result, err := db.Exec(query,
		task.Name, task.Description, task.DataSourceID,
		task.ExecutionType, task.SQLContent, task.ScriptPath, task.ScriptFunction,
		task.ExportMethods, task.ExportFilename, task.ExportSheetName,
		task.WebhookURL, task.WebhookSecret, task.WebhookMessageTemplate,
		task.EmailRecipients, task.EmailSubject, task.EmailBody,
		task.CronExpression, task.Timezone, task.Status,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("更新任务失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("检查更新结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("任务不存在")
	}

	return nil
}

// Delete 删除任务（软删除，保留执行日志）
func (d *TaskDB) Delete(id int) error {
	result, err := db.Exec(`UPDATE export_tasks SET status='deleted' WHERE id=? AND status <> 'deleted'`, id)
	if err != nil {
		return fmt.Errorf("删除任务失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("检查删除结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("任务不存在")
	}

	return nil
}

// UpdateLastExecutionTime 回写任务的最后执行时间
func (d *TaskDB) UpdateLastExecutionTime(id int, t time.Time) error {
	_, err := db.Exec(`UPDATE export_tasks SET last_execution_time=? WHERE id=?`, t, id)
	if err != nil {
		return fmt.Errorf("更新最后执行时间失败: %w", err)
	}
	return nil
}

// UpdateStatus 更新任务状态（启用/禁用）
func (d *TaskDB) UpdateStatus(id int, status string) error {
	result, err := db.Exec(`UPDATE export_tasks SET status=? WHERE id=? AND status <> 'deleted'`, status, id)
	if err != nil {
		return fmt.Errorf("更新任务状态失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("检查更新结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("任务不存在")
	}

	return nil
}
