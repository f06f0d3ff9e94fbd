package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/database"
	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/services"
)

// DataSourceController 处理数据源的管理请求。
// 返回给前端的数据源一律抹掉密码字段。
type DataSourceController struct {
	connections *services.ConnectionManager
}

// NewDataSourceController 创建数据源控制器
func NewDataSourceController(connections *services.ConnectionManager) *DataSourceController {
	return &DataSourceController{connections: connections}
}

// List 数据源列表
func (dc *DataSourceController) List(c *gin.Context) {
	sources, err := database.GetDB().DataSource.List(c.Query("active") == "true")
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询数据源列表失败: "+err.Error())
		return
	}
	for i := range sources {
		sources[i].Password = ""
	}
	respondOK(c, gin.H{"data_sources": sources, "total": len(sources)})
}

// Get 数据源详情
func (dc *DataSourceController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ds, err := database.GetDB().DataSource.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询数据源失败: "+err.Error())
		return
	}
	if ds == nil {
		respondError(c, http.StatusNotFound, "数据源不存在")
		return
	}
	ds.Password = ""
	respondOK(c, gin.H{"data_source": ds})
}

// Create 创建数据源，保存前做一次连通性验证
func (dc *DataSourceController) Create(c *gin.Context) {
	var ds entities.DataSource
	if err := c.ShouldBindJSON(&ds); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if ds.Name == "" {
		respondError(c, http.StatusBadRequest, "数据源名称不能为空")
		return
	}

	if err := services.ProbeDataSource(ds); err != nil {
		respondError(c, http.StatusBadRequest, "数据源连接验证失败: "+err.Error())
		return
	}

	if err := database.GetDB().DataSource.Create(&ds); err != nil {
		respondError(c, http.StatusInternalServerError, "创建数据源失败: "+err.Error())
		return
	}

	log.Info().Str("name", ds.Name).Str("type", ds.Type).Msg("数据源创建成功")
	if err := dc.connections.Register(ds); err != nil {
		log.Warn().Str("name", ds.Name).Err(err).Msg("数据源注册失败")
	}
	ds.Password = ""
	respondOK(c, gin.H{"data_source": ds})
}

// Update 更新数据源。密码留空表示沿用旧密码。
func (dc *DataSourceController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	existing, err := database.GetDB().DataSource.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询数据源失败: "+err.Error())
		return
	}
	if existing == nil {
		respondError(c, http.StatusNotFound, "数据源不存在")
		return
	}

	var ds entities.DataSource
	if err := c.ShouldBindJSON(&ds); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	ds.ID = id

	probe := ds
	if probe.Password == "" {
		probe.Password = existing.Password
	}
	if err := services.ProbeDataSource(probe); err != nil {
		respondError(c, http.StatusBadRequest, "数据源连接验证失败: "+err.Error())
		return
	}

	if err := database.GetDB().DataSource.Update(&ds); err != nil {
		respondError(c, http.StatusInternalServerError, "更新数据源失败: "+err.Error())
		return
	}

	if err := dc.connections.Reload(probe); err != nil {
		log.Warn().Str("name", ds.Name).Err(err).Msg("数据源重载失败")
	}
	ds.Password = ""
	respondOK(c, gin.H{"data_source": ds})
}

// Delete 删除数据源，仍被任务引用时拒绝
func (dc *DataSourceController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ds, err := database.GetDB().DataSource.GetByID(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询数据源失败: "+err.Error())
		return
	}

	if err := database.GetDB().DataSource.Delete(id); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if ds != nil {
		dc.connections.Unregister(ds.Name)
	}
	respondOK(c, nil)
}

// TestConnection 对提交的数据源配置做一次性连通性验证，不落库。
// 密码留空且带 ID 时用库里的旧密码补全。
func (dc *DataSourceController) TestConnection(c *gin.Context) {
	var ds entities.DataSource
	if err := c.ShouldBindJSON(&ds); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	if ds.Password == "" && ds.ID > 0 {
		existing, err := database.GetDB().DataSource.GetByID(ds.ID)
		if err == nil && existing != nil {
			ds.Password = existing.Password
		}
	}

	if err := services.ProbeDataSource(ds); err != nil {
		respondOK(c, gin.H{"connected": false, "message": err.Error()})
		return
	}
	respondOK(c, gin.H{"connected": true})
}

// ListTables 列出已注册数据源的表名
func (dc *DataSourceController) ListTables(c *gin.Context) {
	name := c.Param("name")
	if !dc.connections.Has(name) {
		if err := dc.registerByName(name); err != nil {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
	}

	tables, err := dc.connections.ListTables(name)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询表列表失败: "+err.Error())
		return
	}
	respondOK(c, gin.H{"tables": tables})
}

// DescribeTable 返回表结构
func (dc *DataSourceController) DescribeTable(c *gin.Context) {
	name := c.Param("name")
	table := c.Param("table")
	if !dc.connections.Has(name) {
		if err := dc.registerByName(name); err != nil {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
	}

	schema, err := dc.connections.DescribeTable(name, table)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询表结构失败: "+err.Error())
		return
	}
	respondOK(c, gin.H{"columns": schema.Columns, "rows": schema.Rows})
}

// registerByName 按名称从库里取配置并注册到本进程的连接管理器
func (dc *DataSourceController) registerByName(name string) error {
	ds, err := database.GetDB().DataSource.GetByName(name)
	if err != nil {
		return err
	}
	if ds == nil {
		return fmt.Errorf("数据源 '%s' 不存在", name)
	}
	return dc.connections.Register(*ds)
}
