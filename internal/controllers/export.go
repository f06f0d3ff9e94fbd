package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// ExportController 提供导出文件的下载入口，
// 供 Webhook 通知里的下载链接使用。
type ExportController struct {
	outputDir string
}

// NewExportController 创建导出文件控制器
func NewExportController(outputDir string) *ExportController {
	return &ExportController{outputDir: outputDir}
}

// Download 按文件名下载导出文件。只允许访问输出目录下的
// xlsx 文件，文件名不得携带路径成分。
func (ec *ExportController) Download(c *gin.Context) {
	filename := c.Param("filename")
	if filename == "" || strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		respondError(c, http.StatusBadRequest, "非法的文件名")
		return
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		respondError(c, http.StatusBadRequest, "仅支持下载 xlsx 文件")
		return
	}

	path := filepath.Join(ec.outputDir, filename)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		respondError(c, http.StatusNotFound, "文件不存在")
		return
	}

	c.FileAttachment(path, filename)
}
