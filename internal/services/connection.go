package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/models"
)

// 连接池参数。获取连接的等待上限按分钟计而不是秒计，
// 长分析型查询占满连接池时后来者要能等到连接释放。
const (
	poolMaxOpenConns    = 30 // 基础 10 + 溢出 20
	poolMaxIdleConns    = 10
	poolConnMaxLifetime = 2 * time.Hour
	poolAcquireTimeout  = 5 * time.Minute
)

// connHandle 单个数据源的连接句柄：连接池加一份数据源配置快照
type connHandle struct {
	db *sql.DB
	ds entities.DataSource
}

// ConnectionManager 数据源连接管理器。
// 每个数据源名称至多持有一个活跃连接池；替换配置时先释放旧池再建新池，
// 避免连接泄漏。
type ConnectionManager struct {
	mu             sync.RWMutex
	handles        map[string]*connHandle
	defaultTimeout time.Duration
}

// NewConnectionManager 创建连接管理器，defaultTimeout 为查询默认超时
func NewConnectionManager(defaultTimeout time.Duration) *ConnectionManager {
	if defaultTimeout <= 0 {
		defaultTimeout = time.Hour
	}
	return &ConnectionManager{
		handles:        make(map[string]*connHandle),
		defaultTimeout: defaultTimeout,
	}
}

// Register 注册数据源：建立连接池并用探活查询验证连通性。
// 验证失败时不保留句柄。同名数据源已存在时先释放旧池。
func (m *ConnectionManager) Register(ds entities.DataSource) error {
	driver, err := ds.DriverName()
	if err != nil {
		return &ConnectionError{DataSource: ds.Name, Err: err}
	}
	dsn, err := ds.DSN()
	if err != nil {
		return &ConnectionError{DataSource: ds.Name, Err: err}
	}

	pool, err := sql.Open(driver, dsn)
	if err != nil {
		return &ConnectionError{DataSource: ds.Name, Err: err}
	}

	pool.SetMaxOpenConns(poolMaxOpenConns)
	pool.SetMaxIdleConns(poolMaxIdleConns)
	pool.SetConnMaxLifetime(poolConnMaxLifetime)

	// 探活
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var probe int
	if err := pool.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		pool.Close()
		return &ConnectionError{DataSource: ds.Name, Err: err}
	}

	m.mu.Lock()
	if old, exists := m.handles[ds.Name]; exists {
		old.db.Close()
	}
	m.handles[ds.Name] = &connHandle{db: pool, ds: ds}
	m.mu.Unlock()

	log.Info().Str("data_source", ds.Name).Str("type", ds.Type).Msg("数据源连接成功")
	return nil
}

// ProbeDataSource 对未注册的数据源做一次性连通性验证，
// 管理端保存数据源前调用，不在本进程保留连接池。
func ProbeDataSource(ds entities.DataSource) error {
	driver, err := ds.DriverName()
	if err != nil {
		return &ConnectionError{DataSource: ds.Name, Err: err}
	}
	dsn, err := ds.DSN()
	if err != nil {
		return &ConnectionError{DataSource: ds.Name, Err: err}
	}

	pool, err := sql.Open(driver, dsn)
	if err != nil {
		return &ConnectionError{DataSource: ds.Name, Err: err}
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var probe int
	if err := pool.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		return &ConnectionError{DataSource: ds.Name, Err: err}
	}
	return nil
}

// Unregister 移除数据源并立即释放连接池，幂等
func (m *ConnectionManager) Unregister(name string) {
	m.mu.Lock()
	handle, exists := m.handles[name]
	if exists {
		delete(m.handles, name)
	}
	m.mu.Unlock()

	if exists {
		handle.db.Close()
		log.Info().Str("data_source", name).Msg("数据源已移除")
	}
}

// Reload 重新加载数据源配置：先释放旧池再注册
func (m *ConnectionManager) Reload(ds entities.DataSource) error {
	m.Unregister(ds.Name)
	return m.Register(ds)
}

func (m *ConnectionManager) getHandle(name string) (*connHandle, error) {
	m.mu.RLock()
	handle, exists := m.handles[name]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("数据源 '%s' 不存在", name)
	}
	return handle, nil
}

// Has 检查数据源是否已注册
func (m *ConnectionManager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.handles[name]
	return exists
}

// GetDataSourceInfo 获取已注册数据源的配置快照
func (m *ConnectionManager) GetDataSourceInfo(name string) (*entities.DataSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handle, exists := m.handles[name]
	if !exists {
		return nil, false
	}
	ds := handle.ds
	return &ds, true
}

// ListDataSources 列出所有已注册数据源名称
func (m *ConnectionManager) ListDataSources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handles))
	for name := range m.handles {
		names = append(names, name)
	}
	return names
}

// ExecuteQuery 在指定数据源上执行查询，返回表格结果。
// timeout<=0 时使用默认超时。超时后立即向调用方返回 *QueryTimeoutError，
// 不再等待底层驱动调用结束，连接可能仍被占用，这是尽力而为的放弃而非取消。
func (m *ConnectionManager) ExecuteQuery(name, sqlText string, timeout time.Duration) (*models.ResultSet, error) {
	handle, err := m.getHandle(name)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type queryOutcome struct {
		rs  *models.ResultSet
		err error
	}
	done := make(chan queryOutcome, 1)

	go func() {
		rs, err := runQuery(ctx, handle.db, sqlText)
		done <- queryOutcome{rs: rs, err: err}
	}()

	select {
	case outcome := <-done:
		elapsed := time.Since(start)
		if outcome.err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				log.Error().Str("data_source", name).Dur("timeout", timeout).Msg("查询超时")
				return nil, &QueryTimeoutError{DataSource: name, Timeout: timeout}
			}
			log.Error().Str("data_source", name).Dur("elapsed", elapsed).Err(outcome.err).Msg("查询执行失败")
			return nil, fmt.Errorf("查询执行失败 - 数据源: %s: %w", name, outcome.err)
		}
		log.Info().Str("data_source", name).Int("rows", outcome.rs.Len()).Dur("elapsed", elapsed).Msg("查询执行完成")
		return outcome.rs, nil
	case <-ctx.Done():
		log.Error().Str("data_source", name).Dur("timeout", timeout).Msg("查询超时")
		return nil, &QueryTimeoutError{DataSource: name, Timeout: timeout}
	}
}

// runQuery 执行查询并把 rows 物化为 ResultSet
func runQuery(ctx context.Context, pool *sql.DB, sqlText string) (*models.ResultSet, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, poolAcquireTimeout)
	defer cancel()
	conn, err := pool.Conn(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("获取连接失败: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &models.ResultSet{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// 驱动返回的 []byte 统一转为字符串，导出和预览都按文本处理
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}

	return rs, rows.Err()
}

// TestConnection 测试数据源连通性，只返回布尔结果不抛错误
func (m *ConnectionManager) TestConnection(name string) bool {
	handle, err := m.getHandle(name)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var probe int
	if err := handle.db.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		log.Warn().Str("data_source", name).Err(err).Msg("数据源连接测试失败")
		return false
	}
	return true
}

// ListTables 获取数据源中的表列表（仅辅助工具使用，不在执行热路径上）
func (m *ConnectionManager) ListTables(name string) ([]string, error) {
	handle, err := m.getHandle(name)
	if err != nil {
		return nil, err
	}

	var query string
	switch handle.ds.Type {
	case entities.DSTypeMySQL, entities.DSTypeADB:
		query = "SHOW TABLES"
	case entities.DSTypePostgreSQL:
		query = "SELECT tablename FROM pg_tables WHERE schemaname='public'"
	case entities.DSTypeSQLite:
		query = "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name"
	default:
		return nil, fmt.Errorf("不支持的数据源类型: %s", handle.ds.Type)
	}

	rs, err := m.ExecuteQuery(name, query, 0)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, rs.Len())
	for _, row := range rs.Rows {
		if len(row) > 0 {
			tables = append(tables, fmt.Sprint(row[0]))
		}
	}
	return tables, nil
}

// DescribeTable 获取表结构信息
func (m *ConnectionManager) DescribeTable(name, table string) (*models.ResultSet, error) {
	handle, err := m.getHandle(name)
	if err != nil {
		return nil, err
	}

	var query string
	switch handle.ds.Type {
	case entities.DSTypeMySQL, entities.DSTypeADB:
		query = fmt.Sprintf("DESCRIBE `%s`", table)
	case entities.DSTypePostgreSQL:
		query = fmt.Sprintf(`SELECT column_name, data_type, is_nullable, column_default
			FROM information_schema.columns
			WHERE table_name = '%s'
			ORDER BY ordinal_position`, table)
	case entities.DSTypeSQLite:
		query = fmt.Sprintf("SELECT name, type, `notnull`, dflt_value FROM pragma_table_info('%s')", table)
	default:
		return nil, fmt.Errorf("不支持的数据源类型: %s", handle.ds.Type)
	}

	return m.ExecuteQuery(name, query, 0)
}

// CloseAll 关闭所有数据源连接池
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, handle := range m.handles {
		if err := handle.db.Close(); err != nil {
			log.Error().Str("data_source", name).Err(err).Msg("关闭数据源连接失败")
		}
	}
	m.handles = make(map[string]*connHandle)
}
