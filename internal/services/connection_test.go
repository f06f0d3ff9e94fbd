package services

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"com.duole/query-export-go/internal/entities"
)

// newSQLiteSource 建一个带种子数据的 sqlite 数据源并返回其配置
func newSQLiteSource(t *testing.T, name string) entities.DataSource {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, city TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (id, name, city) VALUES
		(1, 'alice', 'hangzhou'), (2, 'bob', 'beijing'), (3, 'carol', 'shanghai')`)
	require.NoError(t, err)

	return entities.DataSource{
		Name:     name,
		Type:     entities.DSTypeSQLite,
		Database: path,
		IsActive: true,
	}
}

func TestRegisterAndQuery(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()

	ds := newSQLiteSource(t, "warehouse")
	require.NoError(t, m.Register(ds))
	assert.True(t, m.Has("warehouse"))
	assert.False(t, m.Has("nonexistent"))

	rs, err := m.ExecuteQuery("warehouse", "SELECT id, name FROM users ORDER BY id", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	assert.Equal(t, 3, rs.Len())
	// sqlite 驱动返回的文本列不应以 []byte 形式泄漏出去
	assert.Equal(t, "alice", rs.Rows[0][1])
}

func TestRegisterUnsupportedType(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()

	err := m.Register(entities.DataSource{Name: "bad", Type: "oracle"})
	require.Error(t, err)

	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, "bad", connErr.DataSource)
	assert.False(t, m.Has("bad"))
}

func TestRegisterReplacesExisting(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()

	first := newSQLiteSource(t, "ds")
	require.NoError(t, m.Register(first))

	second := newSQLiteSource(t, "ds")
	require.NoError(t, m.Register(second))

	info, ok := m.GetDataSourceInfo("ds")
	require.True(t, ok)
	assert.Equal(t, second.Database, info.Database)
	assert.Len(t, m.ListDataSources(), 1)
}

func TestUnregisterIdempotent(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()

	ds := newSQLiteSource(t, "temp")
	require.NoError(t, m.Register(ds))

	m.Unregister("temp")
	assert.False(t, m.Has("temp"))
	// 再次移除不应有任何副作用
	m.Unregister("temp")
}

func TestExecuteQueryUnknownSource(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()

	_, err := m.ExecuteQuery("ghost", "SELECT 1", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestExecuteQueryBadSQL(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()

	require.NoError(t, m.Register(newSQLiteSource(t, "ds")))

	_, err := m.ExecuteQuery("ds", "SELECT * FROM missing_table", 0)
	require.Error(t, err)

	var timeoutErr *QueryTimeoutError
	assert.False(t, errors.As(err, &timeoutErr), "语法/对象错误不应被归类为超时")
}

func TestTestConnection(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()

	require.NoError(t, m.Register(newSQLiteSource(t, "ds")))
	assert.True(t, m.TestConnection("ds"))
	assert.False(t, m.TestConnection("ghost"))
}

func TestListTablesAndDescribe(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()

	require.NoError(t, m.Register(newSQLiteSource(t, "ds")))

	tables, err := m.ListTables("ds")
	require.NoError(t, err)
	assert.Contains(t, tables, "users")

	schema, err := m.DescribeTable("ds", "users")
	require.NoError(t, err)
	require.Equal(t, 3, schema.Len())
	assert.Equal(t, "id", schema.Rows[0][0])
}

func TestProbeDataSource(t *testing.T) {
	ds := newSQLiteSource(t, "probe")
	assert.NoError(t, ProbeDataSource(ds))

	bad := entities.DataSource{Name: "bad", Type: "mongodb"}
	err := ProbeDataSource(bad)
	require.Error(t, err)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

// slowCountSQL 递归 CTE 迭代数十亿次，任何机器上都远超秒级
const slowCountSQL = `WITH RECURSIVE counter(n) AS (
	SELECT 1 UNION ALL SELECT n+1 FROM counter WHERE n < 4000000000
) SELECT count(*) FROM counter`

func TestExecuteQueryTimeout(t *testing.T) {
	m := NewConnectionManager(time.Minute)
	defer m.CloseAll()
	require.NoError(t, m.Register(newSQLiteSource(t, "slow")))

	start := time.Now()
	_, err := m.ExecuteQuery("slow", slowCountSQL, time.Second)
	elapsed := time.Since(start)

	var timeoutErr *QueryTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "slow", timeoutErr.DataSource)
	assert.Equal(t, time.Second, timeoutErr.Timeout)

	// 在超时边界附近就返回，而不是陪查询跑完
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestQueryTimeoutErrorMessage(t *testing.T) {
	err := &QueryTimeoutError{DataSource: "warehouse", Timeout: 2 * time.Second}
	assert.Contains(t, err.Error(), "warehouse")
	assert.Contains(t, err.Error(), "超时")
}
