package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Export    ExportConfig    `yaml:"export"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Email     EmailConfig     `yaml:"email"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig API 进程服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig 系统元数据库配置（任务、数据源、执行日志等）
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig 调度器进程配置
type SchedulerConfig struct {
	// Timezone 为 IANA 时区名称，所有 cron 触发时间均基于该时区
	Timezone string `yaml:"timezone"`
	// MaxWorkers 同一时刻并发执行的任务数上限
	MaxWorkers int `yaml:"max_workers"`
	// MisfireGraceTime 错过触发时间后仍然补跑的宽限窗口（秒）
	MisfireGraceTime int `yaml:"misfire_grace_time"`
	// Port 调度器进程内部控制接口监听端口（仅回环地址）
	Port string `yaml:"port"`
}

// ExportConfig 导出配置
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
	// QueryTimeout 单次查询的墙钟超时（秒），为支持大数据量导出默认 1 小时
	QueryTimeout int `yaml:"query_timeout"`
	// RetentionDays 导出文件保留天数，超期文件由清理任务删除
	RetentionDays int `yaml:"retention_days"`
}

// WebhookConfig 群机器人 Webhook 通知配置
type WebhookConfig struct {
	URL           string `yaml:"url"`
	Secret        string `yaml:"secret"`
	FileServerURL string `yaml:"file_server_url"`
}

// EmailConfig SMTP 邮件通知配置
type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   string `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	Key string `yaml:"key"`
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 设置默认值
	setDefaults(&config)

	return &config, nil
}

// Default 返回全部使用默认值的配置（测试和本地开发用）
func Default() *Config {
	var config Config
	setDefaults(&config)
	return &config
}

// setDefaults 设置默认配置值
func setDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = "8000"
	}
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Database.Host == "" {
		config.Database.Host = "127.0.0.1"
	}
	if config.Database.Port == "" {
		config.Database.Port = "3306"
	}
	if config.Database.User == "" {
		config.Database.User = "root"
	}
	if config.Database.Name == "" {
		config.Database.Name = "query_export"
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Scheduler.Timezone == "" {
		config.Scheduler.Timezone = "Asia/Shanghai"
	}
	if config.Scheduler.MaxWorkers <= 0 {
		config.Scheduler.MaxWorkers = 10
	}
	if config.Scheduler.MisfireGraceTime <= 0 {
		config.Scheduler.MisfireGraceTime = 1800
	}
	if config.Scheduler.Port == "" {
		config.Scheduler.Port = "7002"
	}
	if config.Export.OutputDir == "" {
		config.Export.OutputDir = "./exports"
	}
	if config.Export.QueryTimeout <= 0 {
		config.Export.QueryTimeout = 3600
	}
	if config.Export.RetentionDays <= 0 {
		config.Export.RetentionDays = 7
	}
	if config.Session.Key == "" {
		config.Session.Key = "change-me-very-secret"
	}
}

// GetDSN 获取系统元数据库连接字符串。
// clientFoundRows 让 UPDATE 返回匹配行数而不是变更行数，
// 否则无变化的编辑会被误判成记录不存在。
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=Asia%%2FShanghai&clientFoundRows=true",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// GetServerAddr 获取 API 进程监听地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetSchedulerAddr 获取调度器控制接口监听地址（固定回环）
func (c *Config) GetSchedulerAddr() string {
	return fmt.Sprintf("127.0.0.1:%s", c.Scheduler.Port)
}

// GetSchedulerURL 获取 API 进程回调调度器使用的基础 URL
func (c *Config) GetSchedulerURL() string {
	return fmt.Sprintf("http://127.0.0.1:%s", c.Scheduler.Port)
}

// QueryTimeoutDuration 查询超时时长
func (c *Config) QueryTimeoutDuration() time.Duration {
	return time.Duration(c.Export.QueryTimeout) * time.Second
}

// MisfireGraceDuration 错过触发的宽限窗口时长
func (c *Config) MisfireGraceDuration() time.Duration {
	return time.Duration(c.Scheduler.MisfireGraceTime) * time.Second
}

// Location 解析调度器时区，解析失败时退回东八区固定时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.FixedZone("UTC+8", 8*3600)
	}
	return loc
}
