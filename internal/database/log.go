package database

import (
	"database/sql"
	"errors"
	"fmt"

	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/models"
)

// LogDB 执行日志数据库操作（空结构体）。
// 执行日志只做追加写入：TaskExecutor 构造完整记录后一次性落库。
type LogDB struct{}

const logColumns = `
	l.id, l.task_id, l.execution_id, l.status, l.start_time, l.end_time, l.duration,
	l.rows_affected, l.output_file_path, l.file_size,
	l.error_message, l.error_trace, l.export_results,
	l.webhook_sent, l.email_sent, l.triggered_by, l.created_at`

func scanLog(scanner interface{ Scan(...any) error }) (*entities.ExecutionLog, error) {
	var l entities.ExecutionLog
	var duration sql.NullFloat64
	err := scanner.Scan(
		&l.ID, &l.TaskID, &l.ExecutionID, &l.Status, &l.StartTime, &l.EndTime, &duration,
		&l.RowsAffected, &l.OutputFilePath, &l.FileSize,
		&l.ErrorMessage, &l.ErrorTrace, &l.ExportResults,
		&l.WebhookSent, &l.EmailSent, &l.TriggeredBy, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Duration = duration.Float64
	return &l, nil
}

// Insert 追加一条执行日志
func (d *LogDB) Insert(l *entities.ExecutionLog) error {
	query := `INSERT INTO execution_logs(
			task_id, execution_id, status, start_time, end_time, duration,
			rows_affected, output_file_path, file_size,
			error_message, error_trace, export_results,
			webhook_sent, email_sent, triggered_by)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	result, err := db.Exec(query,
		l.TaskID, l.ExecutionID, l.Status, l.StartTime, l.EndTime, l.Duration,
		l.RowsAffected, l.OutputFilePath, l.FileSize,
		l.ErrorMessage, l.ErrorTrace, l.ExportResults,
		l.WebhookSent, l.EmailSent, l.TriggeredBy,
	)
	if err != nil {
		return fmt.Errorf("写入执行日志失败: %w", err)
	}

	logID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取日志ID失败: %w", err)
	}
	l.ID = int(logID)

	return nil
}

// List 分页查询执行日志，taskID 为 0 时不按任务过滤
func (d *LogDB) List(taskID, page, pageSize int) (*models.TaskLogListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	where := ""
	args := []any{}
	if taskID > 0 {
		where = ` WHERE l.task_id=?`
		args = append(args, taskID)
	}

	var total int
	err := db.QueryRow(`SELECT COUNT(*) FROM execution_logs l`+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("统计执行日志失败: %w", err)
	}

	query := `SELECT ` + logColumns + ` FROM execution_logs l` + where +
		` ORDER BY l.id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询执行日志失败: %w", err)
	}
	defer rows.Close()

	logs := []entities.ExecutionLog{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描执行日志失败: %w", err)
		}
		logs = append(logs, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历执行日志失败: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &models.TaskLogListResponse{
		Logs:       logs,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// GetByID 根据 ID 获取执行日志详情
func (d *LogDB) GetByID(id int) (*entities.ExecutionLog, error) {
	query := `SELECT ` + logColumns + ` FROM execution_logs l WHERE l.id=?`

	l, err := scanLog(db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询执行日志失败: %w", err)
	}

	return l, nil
}
