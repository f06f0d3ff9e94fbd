package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/database"
	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/services"
)

// TaskController 处理导出任务的管理请求。
// 任何改变任务集的操作在落库后都会通知调度器进程对账。
type TaskController struct {
	executor *services.TaskExecutor
	notifier *services.SchedulerNotifier
}

// NewTaskController 创建任务控制器
func NewTaskController(executor *services.TaskExecutor, notifier *services.SchedulerNotifier) *TaskController {
	return &TaskController{executor: executor, notifier: notifier}
}

// List 任务列表，支持 status 过滤
func (tc *TaskController) List(c *gin.Context) {
	tasks, err := database.GetDB().Task.List(c.Query("status"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询任务列表失败: "+err.Error())
		return
	}
	respondOK(c, gin.H{"tasks": tasks, "total": len(tasks)})
}

// Get 任务详情
func (tc *TaskController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	task, err := database.GetDB().Task.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询任务失败: "+err.Error())
		return
	}
	if task == nil {
		respondError(c, http.StatusNotFound, "任务不存在")
		return
	}
	respondOK(c, gin.H{"task": task})
}

// Create 创建任务，配置先过校验，致命错误拒绝保存
func (tc *TaskController) Create(c *gin.Context) {
	var task entities.ExportTask
	if err := c.ShouldBindJSON(&task); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	validation := tc.executor.ValidateTask(&task)
	if !validation.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"message":    "任务配置校验失败",
			"validation": validation,
		})
		return
	}

	if user, exists := c.Get("user"); exists {
		username := user.(string)
		task.CreatedBy = &username
	}
	if task.Status == "" {
		task.Status = entities.TaskStatusActive
	}

	if err := database.GetDB().Task.Create(&task); err != nil {
		respondError(c, http.StatusInternalServerError, "创建任务失败: "+err.Error())
		return
	}

	tc.notifier.NotifyTask(task.ID, "create")
	log.Info().Int("task_id", task.ID).Str("name", task.Name).Msg("任务创建成功")
	respondOK(c, gin.H{"task": task, "validation": validation})
}

// Update 更新任务
func (tc *TaskController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	existing, err := database.GetDB().Task.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询任务失败: "+err.Error())
		return
	}
	if existing == nil {
		respondError(c, http.StatusNotFound, "任务不存在")
		return
	}

	var task entities.ExportTask
	if err := c.ShouldBindJSON(&task); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	task.ID = id

	validation := tc.executor.ValidateTask(&task)
	if !validation.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"message":    "任务配置校验失败",
			"validation": validation,
		})
		return
	}

	if err := database.GetDB().Task.Update(&task); err != nil {
		respondError(c, http.StatusInternalServerError, "更新任务失败: "+err.Error())
		return
	}

	tc.notifier.NotifyTask(id, "update")
	respondOK(c, gin.H{"task": task, "validation": validation})
}

// Delete 软删除任务并通知调度器移除
func (tc *TaskController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := database.GetDB().Task.Delete(id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除任务失败: "+err.Error())
		return
	}

	tc.notifier.NotifyTask(id, "delete")
	respondOK(c, nil)
}

// UpdateStatus 启用或停用任务
func (tc *TaskController) UpdateStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误")
		return
	}
	if req.Status != entities.TaskStatusActive && req.Status != entities.TaskStatusInactive {
		respondError(c, http.StatusBadRequest, "不支持的任务状态: "+req.Status)
		return
	}

	if err := database.GetDB().Task.UpdateStatus(id, req.Status); err != nil {
		respondError(c, http.StatusInternalServerError, "更新任务状态失败: "+err.Error())
		return
	}

	tc.notifier.NotifyTask(id, "update")
	respondOK(c, gin.H{"status": req.Status})
}

// RunNow 直接在管理端进程执行任务（同步，返回执行日志）。
// 结果落库，触发来源标记为 api。
func (tc *TaskController) RunNow(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	task, err := database.GetDB().Task.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询任务失败: "+err.Error())
		return
	}
	if task == nil {
		respondError(c, http.StatusNotFound, "任务不存在")
		return
	}

	execLog := tc.executor.ExecuteTask(task, entities.TriggeredByAPI)
	if err := database.GetDB().Log.Insert(execLog); err != nil {
		log.Error().Int("task_id", id).Err(err).Msg("写入执行日志失败")
	}

	respondOK(c, gin.H{"log": execLog, "executed": execLog.IsSuccess()})
}

// Test 试跑任务：限量执行并返回数据预览，不触发导出和通知
func (tc *TaskController) Test(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	task, err := database.GetDB().Task.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询任务失败: "+err.Error())
		return
	}
	if task == nil {
		respondError(c, http.StatusNotFound, "任务不存在")
		return
	}

	result := tc.executor.TestTask(task)
	respondOK(c, gin.H{"result": result})
}

// TestDraft 试跑未保存的任务配置
func (tc *TaskController) TestDraft(c *gin.Context) {
	var task entities.ExportTask
	if err := c.ShouldBindJSON(&task); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	result := tc.executor.TestTask(&task)
	respondOK(c, gin.H{"result": result})
}

// Validate 校验任务配置，不执行
func (tc *TaskController) Validate(c *gin.Context) {
	var task entities.ExportTask
	if err := c.ShouldBindJSON(&task); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	respondOK(c, gin.H{"validation": tc.executor.ValidateTask(&task)})
}
