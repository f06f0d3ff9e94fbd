package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// respondOK 标准成功响应，data 为空时只返回 success
func respondOK(c *gin.Context, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// respondError 标准错误响应
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// parseIDParam 解析路径中的整数 ID，非法时直接响应 400 并返回 false
func parseIDParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "无效的ID参数")
		return 0, false
	}
	return id, true
}

// queryInt 解析查询参数中的整数，缺省或非法时返回默认值
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
