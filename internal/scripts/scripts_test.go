package scripts

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/models"
	"com.duole/query-export-go/internal/services"
)

func TestRegisterAll(t *testing.T) {
	reg := services.NewScriptRegistry()
	RegisterAll(reg)
	assert.True(t, reg.Registered("builtin", "export_tables"))
}

func TestExportTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	m := services.NewConnectionManager(time.Minute)
	t.Cleanup(m.CloseAll)
	require.NoError(t, m.Register(entities.DataSource{
		Name:     "probe",
		Type:     entities.DSTypeSQLite,
		Database: path,
		IsActive: true,
	}))

	reg := services.NewScriptRegistry()
	RegisterAll(reg)
	fn, err := reg.Resolve("builtin", "export_tables")
	require.NoError(t, err)

	out, err := fn(&services.ScriptContext{
		Task:        &entities.ExportTask{DataSourceName: "probe"},
		Connections: m,
	})
	require.NoError(t, err)

	rs, ok := out.(*models.ResultSet)
	require.True(t, ok)
	assert.Equal(t, []string{"table_name"}, rs.Columns)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, "orders", rs.Rows[0][0])
}
