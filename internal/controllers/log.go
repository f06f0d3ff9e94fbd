package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"com.duole/query-export-go/internal/database"
)

// LogController 处理执行日志的查询请求，日志只读
type LogController struct{}

// NewLogController 创建日志控制器
func NewLogController() *LogController {
	return &LogController{}
}

// List 执行日志分页列表，支持按任务过滤
func (lc *LogController) List(c *gin.Context) {
	taskID := queryInt(c, "task_id", 0)
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)
	if pageSize > 100 {
		pageSize = 100
	}

	resp, err := database.GetDB().Log.List(taskID, page, pageSize)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询执行日志失败: "+err.Error())
		return
	}
	respondOK(c, gin.H{
		"logs":        resp.Logs,
		"total":       resp.Total,
		"page":        resp.Page,
		"page_size":   resp.PageSize,
		"total_pages": resp.TotalPages,
	})
}

// Get 执行日志详情
func (lc *LogController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	logEntry, err := database.GetDB().Log.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询执行日志失败: "+err.Error())
		return
	}
	if logEntry == nil {
		respondError(c, http.StatusNotFound, "执行日志不存在")
		return
	}
	respondOK(c, gin.H{"log": logEntry})
}
