package services

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/entities"
)

// ScriptContext 脚本函数执行上下文
type ScriptContext struct {
	Task        *entities.ExportTask
	Log         *entities.ExecutionLog
	Connections *ConnectionManager
}

// ScriptFunc 自定义脚本函数。
// 返回值必须是 *models.ResultSet 或 map[string]*models.ResultSet，
// 其它类型视为违反契约，任务按失败处理。
type ScriptFunc func(ctx *ScriptContext) (any, error)

// ScriptRegistry 脚本函数注册表。
// 脚本以（脚本名, 函数名）二元组注册，部署新脚本代码后需要调用方
// 显式清理解析缓存，缓存不会因任何其它原因失效。
type ScriptRegistry struct {
	mu        sync.RWMutex
	functions map[string]ScriptFunc // 注册表
	cache     map[string]ScriptFunc // 解析缓存，按 脚本名::函数名 键控
}

// NewScriptRegistry 创建空的脚本注册表
func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{
		functions: make(map[string]ScriptFunc),
		cache:     make(map[string]ScriptFunc),
	}
}

func scriptKey(scriptPath, functionName string) string {
	return scriptPath + "::" + functionName
}

// Register 注册脚本函数，同键重复注册时后者覆盖前者
func (r *ScriptRegistry) Register(scriptPath, functionName string, fn ScriptFunc) {
	if fn == nil {
		return
	}
	key := scriptKey(scriptPath, functionName)
	r.mu.Lock()
	r.functions[key] = fn
	r.mu.Unlock()
	log.Info().Str("script", scriptPath).Str("function", functionName).Msg("脚本函数注册成功")
}

// Resolve 解析脚本函数：先查缓存，未命中时从注册表解析并写入缓存
func (r *ScriptRegistry) Resolve(scriptPath, functionName string) (ScriptFunc, error) {
	key := scriptKey(scriptPath, functionName)

	r.mu.RLock()
	if fn, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return fn, nil
	}
	fn, ok := r.functions[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("脚本函数未注册: %s", key)
	}

	r.mu.Lock()
	r.cache[key] = fn
	r.mu.Unlock()

	log.Info().Str("script", scriptPath).Str("function", functionName).Msg("脚本函数加载成功")
	return fn, nil
}

// ClearCache 清理解析缓存
func (r *ScriptRegistry) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]ScriptFunc)
	r.mu.Unlock()
	log.Info().Msg("脚本缓存已清理")
}

// CacheInfo 获取缓存信息
func (r *ScriptRegistry) CacheInfo() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.cache))
	for key := range r.cache {
		keys = append(keys, key)
	}
	return map[string]any{
		"cache_size":     len(r.cache),
		"cached_scripts": keys,
	}
}

// Registered 检查脚本函数是否已注册
func (r *ScriptRegistry) Registered(scriptPath, functionName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[scriptKey(scriptPath, functionName)]
	return ok
}
