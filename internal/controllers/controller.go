package controllers

import (
	"github.com/gin-gonic/gin"

	"com.duole/query-export-go/internal/services"
)

// Controller 聚合处理 HTTP 请求的依赖项。它持有
// 认证服务、任务执行器和调度器通知客户端的引用，
// 每个专门控制器使用这些引用来完成自己的任务。
type Controller struct {
	auth       *AuthController
	task       *TaskController
	dataSource *DataSourceController
	logs       *LogController
	scheduler  *SchedulerController
	user       *UserController
	export     *ExportController
}

// NewController 使用提供的依赖项构造 Controller
func NewController(auth *services.AuthService, executor *services.TaskExecutor,
	connections *services.ConnectionManager, notifier *services.SchedulerNotifier,
	exportDir string) *Controller {
	return &Controller{
		auth:       NewAuthController(auth),
		task:       NewTaskController(executor, notifier),
		dataSource: NewDataSourceController(connections),
		logs:       NewLogController(),
		scheduler:  NewSchedulerController(executor, notifier),
		user:       NewUserController(),
		export:     NewExportController(exportDir),
	}
}

// SetupRouter 注册全部路由。认证路由之外的接口都要求登录，
// 用户管理要求管理员权限。
func (ct *Controller) SetupRouter() *gin.Engine {
	r := gin.Default()

	// 认证
	r.POST("/api/login", ct.auth.DoLogin)
	r.POST("/api/logout", ct.auth.Logout)
	r.GET("/api/me", ct.auth.MustLogin(), ct.auth.Me)

	api := r.Group("/api", ct.auth.MustLogin())

	// 任务管理
	api.GET("/tasks", ct.task.List)
	api.POST("/tasks", ct.task.Create)
	api.GET("/tasks/:id", ct.task.Get)
	api.PUT("/tasks/:id", ct.task.Update)
	api.DELETE("/tasks/:id", ct.task.Delete)
	api.POST("/tasks/:id/status", ct.task.UpdateStatus)
	api.POST("/tasks/:id/run", ct.task.RunNow)
	api.POST("/tasks/:id/test", ct.task.Test)
	api.POST("/tasks/test", ct.task.TestDraft)
	api.POST("/tasks/validate", ct.task.Validate)

	// 任务调度状态
	api.GET("/tasks/:id/schedule", ct.scheduler.TaskStatus)
	api.POST("/tasks/:id/pause", ct.scheduler.PauseTask)
	api.POST("/tasks/:id/resume", ct.scheduler.ResumeTask)

	// 数据源管理
	api.GET("/data-sources", ct.dataSource.List)
	api.POST("/data-sources", ct.dataSource.Create)
	api.GET("/data-sources/:id", ct.dataSource.Get)
	api.PUT("/data-sources/:id", ct.dataSource.Update)
	api.DELETE("/data-sources/:id", ct.dataSource.Delete)
	api.POST("/data-sources/test", ct.dataSource.TestConnection)
	api.GET("/meta/:name/tables", ct.dataSource.ListTables)
	api.GET("/meta/:name/tables/:table", ct.dataSource.DescribeTable)

	// 执行日志
	api.GET("/task-logs", ct.logs.List)
	api.GET("/task-logs/:id", ct.logs.Get)

	// 导出文件下载
	api.GET("/exports/:filename", ct.export.Download)

	// 调度器
	api.GET("/scheduler/status", ct.scheduler.Status)
	api.POST("/scheduler/reload-all", ct.scheduler.ReloadAll)
	api.GET("/scheduler/script-cache", ct.scheduler.ScriptCacheInfo)
	api.POST("/scheduler/script-cache/clear", ct.scheduler.ClearScriptCache)

	// 用户管理（仅管理员）
	admin := api.Group("/admin", ct.auth.MustAdmin())
	admin.GET("/users", ct.user.List)
	admin.POST("/users", ct.user.Create)
	admin.POST("/users/:id/toggle", ct.user.Toggle)

	return r
}
