package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "Asia/Shanghai", cfg.Scheduler.Timezone)
	assert.Equal(t, 10, cfg.Scheduler.MaxWorkers)
	assert.Equal(t, 1800, cfg.Scheduler.MisfireGraceTime)
	assert.Equal(t, "7002", cfg.Scheduler.Port)
	assert.Equal(t, "./exports", cfg.Export.OutputDir)
	assert.Equal(t, 3600, cfg.Export.QueryTimeout)
	assert.Equal(t, 7, cfg.Export.RetentionDays)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9000"
scheduler:
  timezone: UTC
  max_workers: 3
export:
  output_dir: /data/exports
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, 3, cfg.Scheduler.MaxWorkers)
	assert.Equal(t, "/data/exports", cfg.Export.OutputDir)

	// 未显式配置的字段落回默认值
	assert.Equal(t, "7002", cfg.Scheduler.Port)
	assert.Equal(t, 1800, cfg.Scheduler.MisfireGraceTime)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestAddrHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:8000", cfg.GetServerAddr())
	assert.Equal(t, "127.0.0.1:7002", cfg.GetSchedulerAddr())
	assert.Equal(t, "http://127.0.0.1:7002", cfg.GetSchedulerURL())
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Hour, cfg.QueryTimeoutDuration())
	assert.Equal(t, 30*time.Minute, cfg.MisfireGraceDuration())
}

func TestLocationFallback(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.Timezone = "Not/AZone"
	loc := cfg.Location()
	require.NotNil(t, loc)
	assert.Equal(t, "UTC+8", loc.String())
}

func TestGetDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.User = "exporter"
	cfg.Database.Password = "secret"
	dsn := cfg.GetDSN()
	assert.Contains(t, dsn, "exporter:secret@tcp(127.0.0.1:3306)/query_export")
	assert.Contains(t, dsn, "parseTime=true")
	// UPDATE 必须按匹配行数判存在性，无变化的编辑不能报"不存在"
	assert.Contains(t, dsn, "clientFoundRows=true")
}
