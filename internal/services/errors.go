package services

import (
	"fmt"
	"time"
)

// ConnectionError 数据源连接失败（不可达、认证失败、连接池耗尽等）
type ConnectionError struct {
	DataSource string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("数据源 '%s' 连接失败: %v", e.DataSource, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryTimeoutError 查询超过墙钟超时。
// 与连接错误区分开，便于运维判断是"查询太慢"还是"数据库挂了"。
type QueryTimeoutError struct {
	DataSource string
	Timeout    time.Duration
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("查询执行超时（%s）- 数据源: %s", e.Timeout, e.DataSource)
}
