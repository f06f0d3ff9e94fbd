package services

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/database"
)

// SchedulerControl 调度器进程的回环控制面。
// 管理端进程改动任务后通过这里通知调度器按数据库当前状态对账，
// 只监听回环地址，不做鉴权。
type SchedulerControl struct {
	scheduler *TaskScheduler
	executor  *TaskExecutor
	callback  TaskCallback

	// 同一任务的并发 reload 请求串行化，避免交错的移除和添加
	taskMu sync.Mutex
	locks  map[int]*sync.Mutex
}

// NewSchedulerControl 创建控制面
func NewSchedulerControl(scheduler *TaskScheduler, executor *TaskExecutor, callback TaskCallback) *SchedulerControl {
	return &SchedulerControl{
		scheduler: scheduler,
		executor:  executor,
		callback:  callback,
		locks:     make(map[int]*sync.Mutex),
	}
}

// Router 构建控制面路由
func (c *SchedulerControl) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/reload-task", c.reloadTask)
	r.POST("/reload-all", c.reloadAll)
	r.POST("/pause-task", c.pauseTask)
	r.POST("/resume-task", c.resumeTask)
	r.POST("/clear-script-cache", c.clearScriptCache)
	r.GET("/task-status/:id", c.taskStatus)
	r.GET("/status", c.status)
	return r
}

func (c *SchedulerControl) taskLock(taskID int) *sync.Mutex {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()
	mu, exists := c.locks[taskID]
	if !exists {
		mu = &sync.Mutex{}
		c.locks[taskID] = mu
	}
	return mu
}

type reloadTaskRequest struct {
	TaskID int    `json:"task_id" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// reloadTask 处理单任务变更通知。
// 以数据库当前状态为准对账：可调度则加入或更新，否则移除。
func (c *SchedulerControl) reloadTask(ctx *gin.Context) {
	var req reloadTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请求参数错误: " + err.Error()})
		return
	}
	if req.Action != "create" && req.Action != "update" && req.Action != "delete" {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "不支持的操作类型: " + req.Action})
		return
	}

	mu := c.taskLock(req.TaskID)
	mu.Lock()
	defer mu.Unlock()

	log.Info().Int("task_id", req.TaskID).Str("action", req.Action).Msg("收到任务变更通知")

	if req.Action == "delete" {
		c.scheduler.RemoveTask(req.TaskID)
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "任务已从调度器移除"})
		return
	}

	// create/update 都重新读库，通知里的信息可能已过时
	task, err := database.GetDB().Task.GetByID(req.TaskID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "查询任务失败: " + err.Error()})
		return
	}
	if task == nil {
		c.scheduler.RemoveTask(req.TaskID)
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "任务不存在，已从调度器移除"})
		return
	}

	if !task.IsSchedulable() {
		c.scheduler.RemoveTask(req.TaskID)
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "任务未启用或无调度配置，已从调度器移除"})
		return
	}

	if c.scheduler.UpdateTask(task, c.callback) {
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "任务调度已更新"})
	} else {
		ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "任务调度更新失败"})
	}
}

// reloadAll 全量对账：读取全部可调度任务并重建调度表
func (c *SchedulerControl) reloadAll(ctx *gin.Context) {
	log.Info().Msg("收到全量重载通知")

	tasks, err := database.GetDB().Task.ListEligible()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "查询任务列表失败: " + err.Error()})
		return
	}

	added := c.scheduler.RescheduleAll(tasks, c.callback)
	ctx.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "全量重载完成",
		"scheduled": added,
		"total":     len(tasks),
	})
}

type taskIDRequest struct {
	TaskID int `json:"task_id" binding:"required"`
}

// pauseTask 暂停任务调度，作业保留但触发被跳过
func (c *SchedulerControl) pauseTask(ctx *gin.Context) {
	var req taskIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请求参数错误: " + err.Error()})
		return
	}
	if !c.scheduler.PauseTask(req.TaskID) {
		ctx.JSON(http.StatusNotFound, gin.H{"success": false, "message": "任务未调度"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "任务已暂停"})
}

// resumeTask 恢复已暂停的任务调度
func (c *SchedulerControl) resumeTask(ctx *gin.Context) {
	var req taskIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请求参数错误: " + err.Error()})
		return
	}
	if !c.scheduler.ResumeTask(req.TaskID) {
		ctx.JSON(http.StatusNotFound, gin.H{"success": false, "message": "任务未调度"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "任务已恢复"})
}

// clearScriptCache 清空本进程的脚本解析缓存，脚本代码发布后调用
func (c *SchedulerControl) clearScriptCache(ctx *gin.Context) {
	c.executor.ClearScriptCache()
	ctx.JSON(http.StatusOK, gin.H{"success": true, "cache": c.executor.ScriptCacheInfo()})
}

// taskStatus 返回单个任务的调度状态
func (c *SchedulerControl) taskStatus(ctx *gin.Context) {
	taskID, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || taskID <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "无效的任务ID"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "status": c.scheduler.GetTaskStatus(taskID)})
}

// status 返回调度器运行状态
func (c *SchedulerControl) status(ctx *gin.Context) {
	stats := c.scheduler.GetSchedulerStats()
	ctx.JSON(http.StatusOK, gin.H{
		"success":      true,
		"stats":        stats,
		"script_cache": c.executor.ScriptCacheInfo(),
	})
}
