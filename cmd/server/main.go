package main

import (
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/config"
	"com.duole/query-export-go/internal/controllers"
	"com.duole/query-export-go/internal/database"
	"com.duole/query-export-go/internal/exporters"
	"com.duole/query-export-go/internal/logging"
	"com.duole/query-export-go/internal/scripts"
	"com.duole/query-export-go/internal/services"
)

// setupDatabase 打开到系统元数据库的连接，失败时进程直接退出
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

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		os.Stderr.WriteString("加载配置失败: " + err.Error() + "\n")
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level)

	db := setupDatabase(cfg)
	defer db.Close()
	database.Init(db)

	store := sessions.NewCookieStore([]byte(cfg.Session.Key))
	auth := services.NewAuthService(store)

	// 管理端进程自带连接管理器和执行器，
	// 供手动执行、试跑和数据源元数据查询使用。
	connections := services.NewConnectionManager(cfg.QueryTimeoutDuration())
	defer connections.CloseAll()
	if sources, err := database.GetDB().DataSource.List(true); err != nil {
		log.Fatal().Err(err).Msg("查询数据源列表失败")
	} else {
		for _, ds := range sources {
			if err := connections.Register(ds); err != nil {
				log.Warn().Str("data_source", ds.Name).Err(err).Msg("数据源注册失败")
			}
		}
	}

	exportManager, err := exporters.NewExportManager(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化导出管理器失败")
	}

	registry := services.NewScriptRegistry()
	scripts.RegisterAll(registry)
	executor := services.NewTaskExecutor(connections, exportManager, registry, cfg.QueryTimeoutDuration())
	notifier := services.NewSchedulerNotifier(cfg.GetSchedulerURL())

	ct := controllers.NewController(auth, executor, connections, notifier, cfg.Export.OutputDir)
	r := ct.SetupRouter()

	log.Info().Str("addr", cfg.GetServerAddr()).Msg("管理端服务启动")
	if err := r.Run(cfg.GetServerAddr()); err != nil {
		log.Fatal().Err(err).Msg("服务启动失败")
	}
}
