package main

import (
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/config"
	"com.duole/query-export-go/internal/database"
	"com.duole/query-export-go/internal/exporters"
	"com.duole/query-export-go/internal/logging"
	"com.duole/query-export-go/internal/scripts"
	"com.duole/query-export-go/internal/services"
)

// setupDatabase 使用 cfg 中的配置打开到系统元数据库的连接。
// 它设置合理的连接池大小并 ping 数据库以确保连通性，
// 无法建立连接时进程直接退出。
func setupDatabase(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("无法连接数据库")
	}

	db.SetConnMaxLifetime(time.Hour)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("数据库连接失败")
	}
	return db
}

// loadDataSources 把库里启用的数据源全部注册进连接管理器。
// 个别数据源连不上只告警，不阻塞调度器启动。
func loadDataSources(connections *services.ConnectionManager) {
	sources, err := database.GetDB().DataSource.List(true)
	if err != nil {
		log.Fatal().Err(err).Msg("查询数据源列表失败")
	}

	for _, ds := range sources {
		if err := connections.Register(ds); err != nil {
			log.Warn().Str("data_source", ds.Name).Err(err).Msg("数据源注册失败")
		}
	}
	log.Info().Int("total", len(sources)).Int("connected", len(connections.ListDataSources())).
		Msg("数据源加载完成")
}

// scheduleTasks 把全部可调度任务加载进调度器
func scheduleTasks(scheduler *services.TaskScheduler, callback services.TaskCallback) {
	tasks, err := database.GetDB().Task.ListEligible()
	if err != nil {
		log.Fatal().Err(err).Msg("查询任务列表失败")
	}

	added := scheduler.RescheduleAll(tasks, callback)
	log.Info().Int("eligible", len(tasks)).Int("scheduled", added).Msg("定时任务加载完成")
}

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// 日志还没初始化，直接写标准错误
		os.Stderr.WriteString("加载配置失败: " + err.Error() + "\n")
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level)

	db := setupDatabase(cfg)
	defer db.Close()
	database.Init(db)

	connections := services.NewConnectionManager(cfg.QueryTimeoutDuration())
	defer connections.CloseAll()
	loadDataSources(connections)

	exportManager, err := exporters.NewExportManager(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化导出管理器失败")
	}

	registry := services.NewScriptRegistry()
	scripts.RegisterAll(registry)
	executor := services.NewTaskExecutor(connections, exportManager, registry, cfg.QueryTimeoutDuration())

	scheduler := services.NewTaskScheduler(services.SchedulerOptions{
		Location:     cfg.Location(),
		MaxWorkers:   cfg.Scheduler.MaxWorkers,
		MisfireGrace: cfg.MisfireGraceDuration(),
	})

	// 调度回调：执行任务、落执行日志、更新任务的最近执行时间
	callback := func(taskID int, triggeredBy string) {
		task, err := database.GetDB().Task.GetByID(taskID)
		if err != nil {
			log.Error().Int("task_id", taskID).Err(err).Msg("查询任务失败")
			return
		}
		if task == nil {
			log.Warn().Int("task_id", taskID).Msg("任务不存在，跳过执行")
			return
		}

		execLog := executor.ExecuteTask(task, triggeredBy)
		if err := database.GetDB().Log.Insert(execLog); err != nil {
			log.Error().Int("task_id", taskID).Err(err).Msg("写入执行日志失败")
		}
		if err := database.GetDB().Task.UpdateLastExecutionTime(taskID, execLog.StartTime); err != nil {
			log.Error().Int("task_id", taskID).Err(err).Msg("更新最近执行时间失败")
		}
	}

	scheduleTasks(scheduler, callback)
	scheduler.Start()

	// 内部控制面，只监听回环地址
	control := services.NewSchedulerControl(scheduler, executor, callback)
	controlServer := &http.Server{
		Addr:    cfg.GetSchedulerAddr(),
		Handler: control.Router(),
	}
	go func() {
		log.Info().Str("addr", cfg.GetSchedulerAddr()).Msg("调度器控制接口已启动")
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("控制接口启动失败")
		}
	}()

	// 周期清理：已完成的一次性作业和过期导出文件
	cleanupDone := make(chan struct{})
	go func() {
		jobTicker := time.NewTicker(time.Minute)
		fileTicker := time.NewTicker(time.Hour)
		defer jobTicker.Stop()
		defer fileTicker.Stop()
		for {
			select {
			case <-jobTicker.C:
				scheduler.CleanupCompletedJobs()
			case <-fileTicker.C:
				exportManager.CleanupOldFiles()
			case <-cleanupDone:
				return
			}
		}
	}()

	log.Info().Str("instance", uuid.NewString()).Msg("调度器进程启动完成")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("收到退出信号，开始优雅停止")
	close(cleanupDone)
	controlServer.Close()
	scheduler.Stop()

	log.Info().Msg("调度器进程已退出")
}
