package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// SchedulerNotifier 管理端进程侧的调度器通知客户端。
// 任务变更后异步通知调度器进程对账，通知失败只记日志不回滚：
// 数据库是唯一事实来源，调度器下次全量重载时会自行追平。
type SchedulerNotifier struct {
	baseURL string
	client  *http.Client
}

// NewSchedulerNotifier 创建通知客户端，baseURL 形如 http://127.0.0.1:7002
func NewSchedulerNotifier(baseURL string) *SchedulerNotifier {
	return &SchedulerNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyTask 异步通知单任务变更，action 取 create/update/delete
func (n *SchedulerNotifier) NotifyTask(taskID int, action string) {
	go func() {
		payload, _ := json.Marshal(map[string]any{
			"task_id": taskID,
			"action":  action,
		})
		resp, err := n.client.Post(n.baseURL+"/reload-task", "application/json", bytes.NewReader(payload))
		if err != nil {
			log.Warn().Int("task_id", taskID).Str("action", action).Err(err).
				Msg("通知调度器失败，等待下次全量重载追平")
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			log.Warn().Int("task_id", taskID).Str("action", action).
				Int("status", resp.StatusCode).Str("body", string(body)).
				Msg("调度器拒绝任务变更通知")
			return
		}
		log.Info().Int("task_id", taskID).Str("action", action).Msg("调度器已确认任务变更")
	}()
}

// NotifyReloadAll 异步触发调度器全量重载
func (n *SchedulerNotifier) NotifyReloadAll() {
	go func() {
		resp, err := n.client.Post(n.baseURL+"/reload-all", "application/json", nil)
		if err != nil {
			log.Warn().Err(err).Msg("触发全量重载失败")
			return
		}
		defer resp.Body.Close()
		log.Info().Int("status", resp.StatusCode).Msg("调度器全量重载已触发")
	}()
}

// PauseTask 同步请求调度器暂停任务
func (n *SchedulerNotifier) PauseTask(taskID int) error {
	return n.postTaskID("/pause-task", taskID)
}

// ResumeTask 同步请求调度器恢复任务
func (n *SchedulerNotifier) ResumeTask(taskID int) error {
	return n.postTaskID("/resume-task", taskID)
}

// ClearScriptCache 同步请求调度器进程清空脚本解析缓存
func (n *SchedulerNotifier) ClearScriptCache() error {
	resp, err := n.client.Post(n.baseURL+"/clear-script-cache", "application/json", nil)
	if err != nil {
		return fmt.Errorf("请求调度器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("调度器返回 %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (n *SchedulerNotifier) postTaskID(path string, taskID int) error {
	payload, _ := json.Marshal(map[string]any{"task_id": taskID})
	resp, err := n.client.Post(n.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("请求调度器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("调度器返回 %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// TaskStatus 同步查询单个任务的调度状态
func (n *SchedulerNotifier) TaskStatus(taskID int) (map[string]any, error) {
	resp, err := n.client.Get(fmt.Sprintf("%s/task-status/%d", n.baseURL, taskID))
	if err != nil {
		return nil, fmt.Errorf("查询任务调度状态失败: %w", err)
	}
	defer resp.Body.Close()

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("解析任务调度状态失败: %w", err)
	}
	return status, nil
}

// Status 同步查询调度器状态，供管理端页面透传
func (n *SchedulerNotifier) Status() (map[string]any, error) {
	resp, err := n.client.Get(n.baseURL + "/status")
	if err != nil {
		return nil, fmt.Errorf("查询调度器状态失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("调度器状态接口返回 %d", resp.StatusCode)
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("解析调度器状态失败: %w", err)
	}
	return status, nil
}
