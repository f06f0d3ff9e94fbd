package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestControl(t *testing.T) (*SchedulerControl, *TaskScheduler) {
	t.Helper()
	scheduler := newTestScheduler(t)
	m := NewConnectionManager(time.Minute)
	t.Cleanup(m.CloseAll)
	executor := NewTaskExecutor(m, &stubSink{}, NewScriptRegistry(), time.Minute)
	return NewSchedulerControl(scheduler, executor, noopCallback), scheduler
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestControlStatus(t *testing.T) {
	control, scheduler := newTestControl(t)
	scheduler.Start()
	router := control.Router()

	w, body := doJSON(t, router, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, stats["running"])
	assert.NotNil(t, body["script_cache"])
}

func TestControlReloadTaskBadRequest(t *testing.T) {
	control, _ := newTestControl(t)
	router := control.Router()

	w, _ := doJSON(t, router, http.MethodPost, "/reload-task", `{"task_id": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := doJSON(t, router, http.MethodPost, "/reload-task", `{"task_id": 1, "action": "explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["message"], "explode")
}

func TestControlReloadTaskDelete(t *testing.T) {
	control, scheduler := newTestControl(t)
	router := control.Router()

	require.True(t, scheduler.AddTask(cronTask(7, "待删任务", "* * * * *"), noopCallback))

	w, body := doJSON(t, router, http.MethodPost, "/reload-task", `{"task_id": 7, "action": "delete"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.False(t, scheduler.GetTaskStatus(7).Scheduled)

	// 删除不存在的任务同样成功，对账以最终状态为准
	w, _ = doJSON(t, router, http.MethodPost, "/reload-task", `{"task_id": 7, "action": "delete"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestControlPauseResume(t *testing.T) {
	control, scheduler := newTestControl(t)
	router := control.Router()

	require.True(t, scheduler.AddTask(cronTask(3, "任务", "* * * * *"), noopCallback))

	w, _ := doJSON(t, router, http.MethodPost, "/pause-task", `{"task_id": 3}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, scheduler.GetTaskStatus(3).Paused)

	w, _ = doJSON(t, router, http.MethodPost, "/resume-task", `{"task_id": 3}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, scheduler.GetTaskStatus(3).Paused)

	// 未调度的任务返回 404
	w, _ = doJSON(t, router, http.MethodPost, "/pause-task", `{"task_id": 42}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestControlClearScriptCache(t *testing.T) {
	control, _ := newTestControl(t)
	router := control.Router()

	control.executor.Scripts().Register("s", "f", func(ctx *ScriptContext) (any, error) { return nil, nil })
	_, err := control.executor.Scripts().Resolve("s", "f")
	require.NoError(t, err)
	require.Equal(t, 1, control.executor.ScriptCacheInfo()["cache_size"])

	w, body := doJSON(t, router, http.MethodPost, "/clear-script-cache", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 0, control.executor.ScriptCacheInfo()["cache_size"])
}

func TestControlTaskStatus(t *testing.T) {
	control, scheduler := newTestControl(t)
	router := control.Router()

	require.True(t, scheduler.AddTask(cronTask(5, "任务", "* * * * *"), noopCallback))

	w, body := doJSON(t, router, http.MethodGet, "/task-status/5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	status, ok := body["status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, status["scheduled"])

	w, _ = doJSON(t, router, http.MethodGet, "/task-status/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = doJSON(t, router, http.MethodGet, "/task-status/99", "")
	assert.Equal(t, http.StatusOK, w.Code)
	status = body["status"].(map[string]any)
	assert.Equal(t, false, status["scheduled"])
}
