package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/models"
)

// 试跑模式的行数上限
const testRowLimit = 10

// FailureInfo 失败通知携带的错误信息
type FailureInfo struct {
	ExecutionTime string `json:"execution_time"`
	ErrorType     string `json:"error_type"`
	ErrorMessage  string `json:"error_message"`
	Duration      string `json:"duration"`
}

// ExportSink 导出与通知的对外契约。实现方可能很慢也可能失败，
// 但它的失败不允许让任务执行崩溃。
type ExportSink interface {
	ExportSingle(task *entities.ExportTask, data *models.ResultSet, logDraft *entities.ExecutionLog) (*models.ExportResult, error)
	ExportMultiple(task *entities.ExportTask, datasets map[string]*models.ResultSet, logDraft *entities.ExecutionLog) (*models.ExportResult, error)
	SendFailureNotification(task *entities.ExportTask, errorInfo FailureInfo, logDraft *entities.ExecutionLog)
}

// TaskExecutor 任务执行器。
// ExecuteTask 是错误传播的边界：任何失败都会被捕获进执行日志，
// 不会有异常越过该边界抛给调用方。
type TaskExecutor struct {
	connections  *ConnectionManager
	sink         ExportSink
	scripts      *ScriptRegistry
	queryTimeout time.Duration
}

// NewTaskExecutor 创建任务执行器
func NewTaskExecutor(connections *ConnectionManager, sink ExportSink, scripts *ScriptRegistry, queryTimeout time.Duration) *TaskExecutor {
	if scripts == nil {
		scripts = NewScriptRegistry()
	}
	if queryTimeout <= 0 {
		queryTimeout = time.Hour
	}
	return &TaskExecutor{
		connections:  connections,
		sink:         sink,
		scripts:      scripts,
		queryTimeout: queryTimeout,
	}
}

// Scripts 返回脚本注册表，供装配期注册脚本函数
func (e *TaskExecutor) Scripts() *ScriptRegistry {
	return e.scripts
}

// ExecuteTask 执行一次任务尝试，返回填充完整的执行日志。
// 日志的落库由调用方负责。
func (e *TaskExecutor) ExecuteTask(task *entities.ExportTask, triggeredBy string) *entities.ExecutionLog {
	execLog := entities.NewExecutionLog(task.ID, uuid.NewString(), triggeredBy)

	log.Info().Str("task", task.Name).Str("execution_id", execLog.ExecutionID).
		Str("triggered_by", triggeredBy).Msg("开始执行任务")

	err := e.run(task, execLog)
	if err == nil {
		log.Info().Str("task", task.Name).Str("execution_id", execLog.ExecutionID).Msg("任务执行成功")
		return execLog
	}

	execLog.MarkFailed(err.Error(), errorTrace(err))
	log.Error().Str("task", task.Name).Str("execution_id", execLog.ExecutionID).Err(err).Msg("任务执行失败")

	// 失败通知是尽力而为：它自己的失败只记日志，绝不覆盖主错误
	e.notifyFailure(task, execLog, err)

	return execLog
}

// run 执行数据产出与导出两个阶段，任一阶段出错即返回
func (e *TaskExecutor) run(task *entities.ExportTask, execLog *entities.ExecutionLog) (err error) {
	// 脚本函数可能 panic，统一收敛为失败
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("任务执行发生 panic: %v\n%s", r, debug.Stack())
		}
	}()

	// 检查任务状态
	if !task.IsActive() {
		return fmt.Errorf("任务 '%s' 未启用", task.Name)
	}

	// 检查数据源
	if !e.connections.Has(task.DataSourceName) {
		return fmt.Errorf("数据源 '%s' 不存在", task.DataSourceName)
	}

	// 按执行类型产出数据
	var (
		single *models.ResultSet
		multi  map[string]*models.ResultSet
	)
	switch task.ExecutionType {
	case entities.ExecutionTypeSQL:
		single, err = e.runSQL(task, execLog, task.GetSQLContent())
		if err != nil {
			return err
		}
	case entities.ExecutionTypeScript:
		single, multi, err = e.runScript(task, execLog)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("不支持的执行类型: %s", task.ExecutionType)
	}

	// 导出数据。决策：导出即任务的目的，导出失败按任务失败处理；
	// sink 内部的通知失败只体现在 per-channel 标记里，不向上传播。
	var result *models.ExportResult
	if multi != nil {
		result, err = e.sink.ExportMultiple(task, multi, execLog)
	} else {
		result, err = e.sink.ExportSingle(task, single, execLog)
	}
	if err != nil {
		return fmt.Errorf("数据导出失败: %w", err)
	}

	rows := 0
	if multi != nil {
		for _, rs := range multi {
			rows += rs.Len()
		}
	} else {
		rows = single.Len()
	}

	execLog.MarkSuccess(rows, result.FilePath, result.FileSize)
	execLog.WebhookSent = result.WebhookSent
	execLog.EmailSent = result.EmailSent
	if detail, jsonErr := json.Marshal(result); jsonErr == nil {
		s := string(detail)
		execLog.ExportResults = &s
	}

	return nil
}

// runSQL 执行 SQL 任务
func (e *TaskExecutor) runSQL(task *entities.ExportTask, execLog *entities.ExecutionLog, sqlText string) (*models.ResultSet, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, fmt.Errorf("SQL内容不能为空")
	}
	return e.connections.ExecuteQuery(task.DataSourceName, sqlText, e.queryTimeout)
}

// runScript 执行脚本任务。返回单数据集或命名多数据集之一，
// 其它返回类型是契约违规。
func (e *TaskExecutor) runScript(task *entities.ExportTask, execLog *entities.ExecutionLog) (*models.ResultSet, map[string]*models.ResultSet, error) {
	if task.ScriptPath == nil || *task.ScriptPath == "" || task.ScriptFunction == nil || *task.ScriptFunction == "" {
		return nil, nil, fmt.Errorf("脚本路径和函数名不能为空")
	}

	fn, err := e.scripts.Resolve(*task.ScriptPath, *task.ScriptFunction)
	if err != nil {
		return nil, nil, err
	}

	result, err := fn(&ScriptContext{
		Task:        task,
		Log:         execLog,
		Connections: e.connections,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("脚本执行失败: %w", err)
	}

	switch v := result.(type) {
	case *models.ResultSet:
		if v == nil {
			return nil, nil, fmt.Errorf("脚本函数返回空结果")
		}
		return v, nil, nil
	case map[string]*models.ResultSet:
		if len(v) == 0 {
			return nil, nil, fmt.Errorf("脚本函数返回空结果")
		}
		return nil, v, nil
	default:
		return nil, nil, fmt.Errorf("脚本函数必须返回 *models.ResultSet 或 map[string]*models.ResultSet，实际返回 %T", result)
	}
}

// notifyFailure 尽力而为地发送失败通知
func (e *TaskExecutor) notifyFailure(task *entities.ExportTask, execLog *entities.ExecutionLog, cause error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("发送失败通知时出错")
		}
	}()

	e.sink.SendFailureNotification(task, FailureInfo{
		ExecutionTime: execLog.StartTime.Format("2006-01-02 15:04:05"),
		ErrorType:     errorType(cause),
		ErrorMessage:  cause.Error(),
		Duration:      execLog.DurationStr(),
	}, execLog)
}

// errorType 错误分类名，用于通知展示
func errorType(err error) string {
	var timeoutErr *QueryTimeoutError
	var connErr *ConnectionError
	switch {
	case errors.As(err, &timeoutErr):
		return "QueryTimeout"
	case errors.As(err, &connErr):
		return "ConnectionError"
	default:
		return "ExecutionError"
	}
}

// errorTrace 展开错误链作为堆栈记录
func errorTrace(err error) string {
	var parts []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n  caused by: ")
}

// TestTask 试跑任务：限制行数、跳过导出，返回预览结果。
// 用于任务保存前的交互式验证。
func (e *TaskExecutor) TestTask(task *entities.ExportTask) *models.TaskTestResult {
	result := &models.TaskTestResult{}
	start := time.Now()
	defer func() {
		result.ExecutionTime = time.Since(start).Seconds()
	}()

	validation := e.ValidateTask(task)
	if !validation.Valid {
		result.Errors = validation.Errors
		return result
	}

	switch task.ExecutionType {
	case entities.ExecutionTypeSQL:
		rs, err := e.connections.ExecuteQuery(task.DataSourceName, limitSQL(task.GetSQLContent(), testRowLimit), e.queryTimeout)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result
		}
		result.DataPreview = rs.Records()
		result.RowCount = rs.Len()
		result.Columns = rs.Columns
	case entities.ExecutionTypeScript:
		execLog := entities.NewExecutionLog(task.ID, "test", "test")
		single, multi, err := func() (rs *models.ResultSet, m map[string]*models.ResultSet, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("脚本执行发生 panic: %v", r)
				}
			}()
			return e.runScript(task, execLog)
		}()
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result
		}
		if multi != nil {
			// 多数据集取第一个做预览，行数按全部数据集合计
			total := 0
			for _, rs := range multi {
				total += rs.Len()
			}
			for _, rs := range multi {
				rs.Truncate(5)
				result.DataPreview = rs.Records()
				result.Columns = rs.Columns
				break
			}
			result.RowCount = total
		} else {
			single.Truncate(testRowLimit)
			result.DataPreview = single.Records()
			result.RowCount = single.Len()
			result.Columns = single.Columns
		}
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("不支持的执行类型: %s", task.ExecutionType))
		return result
	}

	result.Success = true
	return result
}

// limitSQL 为试跑 SQL 注入行数限制。
// SQL 已包含 limit 子句时不重复追加（大小写不敏感的子串检查）。
func limitSQL(sqlText string, limit int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(sqlText), ";")
	if strings.Contains(strings.ToLower(trimmed), "limit") {
		return trimmed
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
}

// ValidateTask 校验任务配置，返回错误与警告列表
func (e *TaskExecutor) ValidateTask(task *entities.ExportTask) *models.TaskValidation {
	v := &models.TaskValidation{}

	if task.Name == "" {
		v.Errors = append(v.Errors, "任务名称不能为空")
	}

	if task.DataSourceName == "" {
		v.Errors = append(v.Errors, "数据源不能为空")
	} else if !e.connections.Has(task.DataSourceName) {
		v.Errors = append(v.Errors, fmt.Sprintf("数据源 '%s' 不存在", task.DataSourceName))
	} else if !e.connections.TestConnection(task.DataSourceName) {
		v.Errors = append(v.Errors, fmt.Sprintf("数据源 '%s' 连接失败", task.DataSourceName))
	}

	switch task.ExecutionType {
	case entities.ExecutionTypeSQL:
		sqlText := strings.TrimSpace(task.GetSQLContent())
		if sqlText == "" {
			v.Errors = append(v.Errors, "SQL内容不能为空")
		} else if !strings.HasPrefix(strings.ToLower(sqlText), "select") {
			v.Warnings = append(v.Warnings, "建议使用SELECT语句进行查询")
		}
	case entities.ExecutionTypeScript:
		if task.ScriptPath == nil || *task.ScriptPath == "" {
			v.Errors = append(v.Errors, "脚本路径不能为空")
		}
		if task.ScriptFunction == nil || *task.ScriptFunction == "" {
			v.Errors = append(v.Errors, "脚本函数名不能为空")
		}
		if task.ScriptPath != nil && task.ScriptFunction != nil &&
			!e.scripts.Registered(*task.ScriptPath, *task.ScriptFunction) {
			v.Errors = append(v.Errors, fmt.Sprintf("脚本函数未注册: %s::%s", *task.ScriptPath, *task.ScriptFunction))
		}
	default:
		v.Errors = append(v.Errors, fmt.Sprintf("不支持的执行类型: %s", task.ExecutionType))
	}

	methods := task.GetExportMethods()
	if len(methods) == 0 {
		v.Warnings = append(v.Warnings, "未配置导出方式")
	}
	if task.HasExportMethod(entities.ExportMethodEmail) && len(task.GetEmailRecipients()) == 0 {
		v.Errors = append(v.Errors, "邮件导出需要配置接收人")
	}

	if task.CronExpression != nil && *task.CronExpression != "" {
		if _, err := cron.ParseStandard(*task.CronExpression); err != nil {
			v.Errors = append(v.Errors, "Cron表达式格式错误")
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// ClearScriptCache 清理脚本缓存
func (e *TaskExecutor) ClearScriptCache() {
	e.scripts.ClearCache()
}

// ScriptCacheInfo 获取脚本缓存信息
func (e *TaskExecutor) ScriptCacheInfo() map[string]any {
	return e.scripts.CacheInfo()
}
