package entities

import (
	"fmt"
	"time"
)

// 支持的数据源类型
const (
	DSTypeMySQL      = "mysql"
	DSTypeADB        = "adb" // 云上 MySQL 兼容分析型数据库，走 mysql 驱动
	DSTypePostgreSQL = "postgresql"
	DSTypeSQLite     = "sqlite"
)

// DataSource 数据源配置
type DataSource struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Charset  string `json:"charset"`
	// ConnectionParams 额外连接参数，原样追加到 DSN
	ConnectionParams *string   `json:"connection_params,omitempty"`
	Description      *string   `json:"description,omitempty"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DriverName 返回数据源类型对应的 database/sql 驱动名
func (ds *DataSource) DriverName() (string, error) {
	switch ds.Type {
	case DSTypeMySQL, DSTypeADB:
		return "mysql", nil
	case DSTypePostgreSQL:
		return "postgres", nil
	case DSTypeSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("不支持的数据源类型: %s", ds.Type)
	}
}

// DSN 返回数据源连接字符串
func (ds *DataSource) DSN() (string, error) {
	charset := ds.Charset
	if charset == "" {
		charset = "utf8mb4"
	}

	switch ds.Type {
	case DSTypeMySQL, DSTypeADB:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=%s",
			ds.Username, ds.Password, ds.Host, ds.Port, ds.Database, charset)
		if ds.ConnectionParams != nil && *ds.ConnectionParams != "" {
			dsn += "&" + *ds.ConnectionParams
		}
		return dsn, nil
	case DSTypePostgreSQL:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			ds.Host, ds.Port, ds.Username, ds.Password, ds.Database)
		if ds.ConnectionParams != nil && *ds.ConnectionParams != "" {
			dsn += " " + *ds.ConnectionParams
		}
		return dsn, nil
	case DSTypeSQLite:
		// sqlite 的 Database 字段即文件路径（或 :memory:）
		return ds.Database, nil
	default:
		return "", fmt.Errorf("不支持的数据源类型: %s", ds.Type)
	}
}
