package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"com.duole/query-export-go/internal/models"
)

func TestScriptRegistryResolve(t *testing.T) {
	r := NewScriptRegistry()
	r.Register("reports/daily", "export_users", func(ctx *ScriptContext) (any, error) {
		return &models.ResultSet{Columns: []string{"id"}}, nil
	})

	assert.True(t, r.Registered("reports/daily", "export_users"))
	assert.False(t, r.Registered("reports/daily", "other"))

	fn, err := r.Resolve("reports/daily", "export_users")
	require.NoError(t, err)
	require.NotNil(t, fn)

	// 同一键解析两次命中缓存，缓存里只有一项
	_, err = r.Resolve("reports/daily", "export_users")
	require.NoError(t, err)
	info := r.CacheInfo()
	assert.Equal(t, 1, info["cache_size"])
	assert.Contains(t, info["cached_scripts"], "reports/daily::export_users")
}

func TestScriptRegistryResolveUnregistered(t *testing.T) {
	r := NewScriptRegistry()
	_, err := r.Resolve("ghost", "fn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost::fn")
}

func TestScriptRegistryNilFunc(t *testing.T) {
	r := NewScriptRegistry()
	r.Register("a", "b", nil)
	assert.False(t, r.Registered("a", "b"))
}

func TestScriptRegistryClearCache(t *testing.T) {
	r := NewScriptRegistry()
	r.Register("s", "f", func(ctx *ScriptContext) (any, error) { return nil, nil })

	_, err := r.Resolve("s", "f")
	require.NoError(t, err)
	r.ClearCache()
	assert.Equal(t, 0, r.CacheInfo()["cache_size"])

	// 缓存清理不影响注册表本身
	assert.True(t, r.Registered("s", "f"))
	_, err = r.Resolve("s", "f")
	assert.NoError(t, err)
}
