package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"com.duole/query-export-go/internal/services"
)

// SchedulerController 把调度器进程的控制面透传给管理端
type SchedulerController struct {
	executor *services.TaskExecutor
	notifier *services.SchedulerNotifier
}

// NewSchedulerController 创建调度器控制器
func NewSchedulerController(executor *services.TaskExecutor, notifier *services.SchedulerNotifier) *SchedulerController {
	return &SchedulerController{executor: executor, notifier: notifier}
}

// Status 查询调度器运行状态
func (sc *SchedulerController) Status(c *gin.Context) {
	status, err := sc.notifier.Status()
	if err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}

// TaskStatus 查询单个任务的调度状态
func (sc *SchedulerController) TaskStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	status, err := sc.notifier.TaskStatus(id)
	if err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}

// ReloadAll 触发调度器全量重载
func (sc *SchedulerController) ReloadAll(c *gin.Context) {
	sc.notifier.NotifyReloadAll()
	respondOK(c, gin.H{"message": "全量重载已触发"})
}

// PauseTask 暂停任务调度
func (sc *SchedulerController) PauseTask(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := sc.notifier.PauseTask(id); err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(c, nil)
}

// ResumeTask 恢复任务调度
func (sc *SchedulerController) ResumeTask(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := sc.notifier.ResumeTask(id); err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(c, nil)
}

// ClearScriptCache 清空脚本解析缓存。
// 管理端和调度器两个进程各持有一份缓存，本地清完后同步请求调度器清理，
// 调度器侧失败时返回网关错误，管理端侧的清理不回滚。
func (sc *SchedulerController) ClearScriptCache(c *gin.Context) {
	sc.executor.ClearScriptCache()
	if err := sc.notifier.ClearScriptCache(); err != nil {
		respondError(c, http.StatusBadGateway, "调度器侧脚本缓存清理失败: "+err.Error())
		return
	}
	respondOK(c, gin.H{"cache": sc.executor.ScriptCacheInfo()})
}

// ScriptCacheInfo 查看脚本缓存状态
func (sc *SchedulerController) ScriptCacheInfo(c *gin.Context) {
	respondOK(c, gin.H{"cache": sc.executor.ScriptCacheInfo()})
}
