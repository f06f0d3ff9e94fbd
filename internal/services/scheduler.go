package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"com.duole/query-export-go/internal/entities"
	"com.duole/query-export-go/internal/models"
)

// TaskCallback 调度触发时的执行回调
type TaskCallback func(taskID int, triggeredBy string)

// SchedulerOptions 调度器参数
type SchedulerOptions struct {
	Location *time.Location
	// MaxWorkers 全局并发执行上限
	MaxWorkers int
	// MisfireGrace 错过触发时间后仍然补跑的宽限窗口，超过则跳过本次触发
	MisfireGrace time.Duration
}

// trackedSchedule 包装周期调度以记录每次的计划触发时间，
// 供触发时判断是否超出宽限窗口。
//
// 引擎在触发作业后会立即调用 Next 计算下一轮触发点，而作业本身
// 在独立 goroutine 里才读取计划时间，单个字段会被下一轮的值覆盖。
// 因此按 FIFO 队列记录：每次 Next 入队一个计划时间，每次触发出队一个，
// 两边顺序天然对应。
type trackedSchedule struct {
	inner cron.Schedule

	mu      sync.Mutex
	planned []time.Time
}

func (ts *trackedSchedule) Next(t time.Time) time.Time {
	next := ts.inner.Next(t)
	if !next.IsZero() {
		ts.mu.Lock()
		ts.planned = append(ts.planned, next)
		ts.mu.Unlock()
	}
	return next
}

// takePlanned 取走最早一次尚未消费的计划触发时间，没有时返回零值
func (ts *trackedSchedule) takePlanned() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.planned) == 0 {
		return time.Time{}
	}
	at := ts.planned[0]
	ts.planned = ts.planned[1:]
	return at
}

// oneShotSchedule 只触发一次的调度：到点后 Next 恒返回零值，
// 已触发的条目由 CleanupCompletedJobs 周期清理。
type oneShotSchedule struct {
	at time.Time
}

func (o oneShotSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// TaskScheduler 任务调度器。
// 把可调度任务集合映射为 cron 引擎里的活跃作业，并在触发时调用注册的回调。
// 回调表由调度器实例独占持有，只能经由 AddTask/RemoveTask 变更。
//
// 并发纪律：同一任务 ID 的执行绝不并发（触发遇到仍在执行的同名任务时
// 跳过而不是排队），不同任务 ID 之间并发度受 MaxWorkers 限制。
// 手动触发与 cron 触发共享同一道去重门。
type TaskScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	parser  cron.Parser
	loc     *time.Location
	grace   time.Duration
	running bool

	workers chan struct{}

	entries   map[int]cron.EntryID // taskID -> 周期作业
	schedules map[int]*trackedSchedule
	callbacks map[int]TaskCallback
	manual    map[cron.EntryID]bool // 一次性作业
	paused    map[int]bool

	// 去重门：正在执行的任务 ID 集合
	inFlightMu sync.Mutex
	inFlight   map[int]bool
}

// NewTaskScheduler 创建调度器
func NewTaskScheduler(opts SchedulerOptions) *TaskScheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.FixedZone("UTC+8", 8*3600)
	}
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 10
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s := &TaskScheduler{
		parser:    parser,
		loc:       loc,
		grace:     opts.MisfireGrace,
		workers:   make(chan struct{}, workers),
		entries:   make(map[int]cron.EntryID),
		schedules: make(map[int]*trackedSchedule),
		callbacks: make(map[int]TaskCallback),
		manual:    make(map[cron.EntryID]bool),
		paused:    make(map[int]bool),
		inFlight:  make(map[int]bool),
	}
	s.cron = cron.New(cron.WithParser(parser), cron.WithLocation(loc))

	log.Info().Str("timezone", loc.String()).Int("max_workers", workers).Msg("任务调度器初始化完成")
	return s
}

// Start 启动调度器，幂等
func (s *TaskScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	log.Info().Msg("任务调度器已启动")
}

// Stop 停止调度器，阻塞等待在途执行全部结束后返回，幂等
func (s *TaskScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	log.Info().Msg("任务调度器已停止")
}

// IsRunning 检查调度器是否运行中
func (s *TaskScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// AddTask 添加定时任务。任务未启用或未配置 cron 表达式时返回 false。
// cron 表达式在交给引擎前独立校验，快速失败。
func (s *TaskScheduler) AddTask(task *entities.ExportTask, callback TaskCallback) bool {
	if !task.IsSchedulable() {
		log.Warn().Str("task", task.Name).Msg("任务未启用或未配置Cron表达式，跳过添加")
		return false
	}

	spec := *task.CronExpression
	if task.Timezone != nil && *task.Timezone != "" {
		spec = "CRON_TZ=" + *task.Timezone + " " + spec
	}

	schedule, err := s.parser.Parse(spec)
	if err != nil {
		log.Error().Str("task", task.Name).Str("cron", *task.CronExpression).Err(err).Msg("Cron表达式无效")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 已存在时整体替换：先移除旧作业，绝不原地修改触发器
	s.removeLocked(task.ID)

	tracked := &trackedSchedule{inner: schedule}
	taskID := task.ID
	entryID := s.cron.Schedule(tracked, cron.FuncJob(func() {
		s.fire(taskID, entities.TriggeredByCron, tracked.takePlanned())
	}))

	s.entries[task.ID] = entryID
	s.schedules[task.ID] = tracked
	if callback != nil {
		s.callbacks[task.ID] = callback
	}

	next := schedule.Next(time.Now().In(s.loc))
	log.Info().Str("task", task.Name).Int("task_id", task.ID).
		Time("next_run", next).Msg("定时任务添加成功")
	return true
}

// RemoveTask 移除定时任务及其回调。任务不存在时返回 false，不报错。
func (s *TaskScheduler) RemoveTask(taskID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[taskID]; !exists {
		log.Warn().Int("task_id", taskID).Msg("定时任务不存在")
		return false
	}
	s.removeLocked(taskID)
	log.Info().Int("task_id", taskID).Msg("定时任务移除成功")
	return true
}

// removeLocked 调用方必须持有 s.mu
func (s *TaskScheduler) removeLocked(taskID int) {
	if entryID, exists := s.entries[taskID]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, taskID)
		delete(s.schedules, taskID)
		delete(s.callbacks, taskID)
		delete(s.paused, taskID)
	}
}

// UpdateTask 更新定时任务：移除后重新添加，避免残留旧触发器
func (s *TaskScheduler) UpdateTask(task *entities.ExportTask, callback TaskCallback) bool {
	s.RemoveTask(task.ID)
	return s.AddTask(task, callback)
}

// ExecuteNow 提交手动执行：注册约一秒后触发的一次性作业，
// 让手动触发走与 cron 触发相同的并发控制路径。
func (s *TaskScheduler) ExecuteNow(task *entities.ExportTask, callback TaskCallback) bool {
	if callback == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	taskID := task.ID
	entryID := s.cron.Schedule(oneShotSchedule{at: time.Now().Add(time.Second)}, cron.FuncJob(func() {
		s.fireManual(taskID, callback)
	}))
	s.manual[entryID] = true

	log.Info().Str("task", task.Name).Int("task_id", task.ID).Msg("手动执行任务已提交")
	return true
}

// fire cron 触发入口
func (s *TaskScheduler) fire(taskID int, triggeredBy string, plannedAt time.Time) {
	s.mu.Lock()
	callback := s.callbacks[taskID]
	paused := s.paused[taskID]
	s.mu.Unlock()

	if paused {
		log.Info().Int("task_id", taskID).Msg("任务已暂停，跳过本次触发")
		return
	}
	if callback == nil {
		log.Error().Int("task_id", taskID).Msg("任务回调未注册")
		return
	}

	// 错过触发时间超过宽限窗口的补跑没有意义，直接跳过
	if s.grace > 0 && !plannedAt.IsZero() && time.Since(plannedAt) > s.grace {
		log.Warn().Int("task_id", taskID).Time("planned_at", plannedAt).
			Dur("grace", s.grace).Msg("触发超出宽限窗口，跳过本次执行")
		return
	}

	s.invoke(taskID, triggeredBy, callback)
}

// fireManual 手动触发入口，与 cron 触发共享同一道去重门
func (s *TaskScheduler) fireManual(taskID int, callback TaskCallback) {
	s.invoke(taskID, entities.TriggeredByManual, callback)
}

// invoke 经去重门和并发上限执行回调。
// 同一任务仍在执行时本次触发被跳过（合并），不排队。
func (s *TaskScheduler) invoke(taskID int, triggeredBy string, callback TaskCallback) {
	s.inFlightMu.Lock()
	if s.inFlight[taskID] {
		s.inFlightMu.Unlock()
		log.Warn().Int("task_id", taskID).Msg("任务正在执行中，跳过本次触发")
		return
	}
	s.inFlight[taskID] = true
	s.inFlightMu.Unlock()

	defer func() {
		s.inFlightMu.Lock()
		delete(s.inFlight, taskID)
		s.inFlightMu.Unlock()
	}()

	// 全局并发上限
	s.workers <- struct{}{}
	defer func() { <-s.workers }()

	// 回调异常不允许击穿调度器进程
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("task_id", taskID).Any("panic", r).Msg("任务执行出错")
		}
	}()

	log.Info().Int("task_id", taskID).Str("triggered_by", triggeredBy).Msg("开始执行任务")
	callback(taskID, triggeredBy)
}

// PauseTask 暂停任务：作业保留，触发被跳过。任务未调度时返回 false。
func (s *TaskScheduler) PauseTask(taskID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[taskID]; !exists {
		log.Warn().Int("task_id", taskID).Msg("任务不存在")
		return false
	}
	s.paused[taskID] = true
	log.Info().Int("task_id", taskID).Msg("任务已暂停")
	return true
}

// ResumeTask 恢复已暂停的任务
func (s *TaskScheduler) ResumeTask(taskID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[taskID]; !exists {
		log.Warn().Int("task_id", taskID).Msg("任务不存在")
		return false
	}
	delete(s.paused, taskID)
	log.Info().Int("task_id", taskID).Msg("任务已恢复")
	return true
}

// RescheduleAll 清空全部周期作业并按给定任务集重建，批量加载后使用
func (s *TaskScheduler) RescheduleAll(tasks []entities.ExportTask, callback TaskCallback) int {
	log.Info().Msg("开始重新调度所有任务")

	s.mu.Lock()
	for taskID := range s.entries {
		if entryID, exists := s.entries[taskID]; exists {
			s.cron.Remove(entryID)
		}
	}
	s.entries = make(map[int]cron.EntryID)
	s.schedules = make(map[int]*trackedSchedule)
	s.callbacks = make(map[int]TaskCallback)
	s.paused = make(map[int]bool)
	s.mu.Unlock()

	added := 0
	for i := range tasks {
		if s.AddTask(&tasks[i], callback) {
			added++
		}
	}

	log.Info().Int("added", added).Msg("重新调度完成")
	return added
}

// CleanupCompletedJobs 清理已触发完的一次性作业，限制手动触发造成的内存增长
func (s *TaskScheduler) CleanupCompletedJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, entry := range s.cron.Entries() {
		if s.manual[entry.ID] && entry.Next.IsZero() {
			s.cron.Remove(entry.ID)
			delete(s.manual, entry.ID)
			removed++
		}
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("清理已完成任务")
	}
	return removed
}

// GetTaskStatus 获取单个任务的调度状态，只读
func (s *TaskScheduler) GetTaskStatus(taskID int) models.TaskScheduleStatus {
	s.mu.Lock()
	entryID, exists := s.entries[taskID]
	paused := s.paused[taskID]
	s.mu.Unlock()

	if !exists {
		return models.TaskScheduleStatus{
			Scheduled: false,
			Reason:    "任务未添加到调度器或已被移除",
		}
	}

	entry := s.cron.Entry(entryID)
	status := models.TaskScheduleStatus{
		Scheduled: true,
		JobName:   fmt.Sprintf("task_%d", taskID),
		Paused:    paused,
	}
	if !entry.Next.IsZero() {
		status.NextRunTime = entry.Next.In(s.loc).Format(time.RFC3339)
	}
	return status
}

// GetSchedulerStats 获取调度器统计信息，只读
func (s *TaskScheduler) GetSchedulerStats() models.SchedulerStats {
	s.mu.Lock()
	running := s.running
	scheduled := len(s.entries)
	manual := len(s.manual)
	s.mu.Unlock()

	stats := models.SchedulerStats{
		Running:        running,
		ScheduledTasks: scheduled,
		ManualTasks:    manual,
		Timezone:       s.loc.String(),
	}

	var next time.Time
	entries := s.cron.Entries()
	stats.TotalJobs = len(entries)
	for _, entry := range entries {
		if entry.Next.IsZero() {
			continue
		}
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	if !next.IsZero() {
		stats.NextRunTime = next.In(s.loc).Format("Mon, 02 Jan 2006 15:04:05 MST")
	}

	return stats
}
