package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"com.duole/query-export-go/internal/entities"
)

func newTestScheduler(t *testing.T) *TaskScheduler {
	t.Helper()
	s := NewTaskScheduler(SchedulerOptions{
		Location:     time.UTC,
		MaxWorkers:   4,
		MisfireGrace: 30 * time.Minute,
	})
	t.Cleanup(s.Stop)
	return s
}

func cronTask(id int, name, spec string) *entities.ExportTask {
	return &entities.ExportTask{
		ID:             id,
		Name:           name,
		Status:         entities.TaskStatusActive,
		CronExpression: strptr(spec),
	}
}

func noopCallback(taskID int, triggeredBy string) {}

func TestAddTaskNotSchedulable(t *testing.T) {
	s := newTestScheduler(t)

	inactive := cronTask(1, "停用", "* * * * *")
	inactive.Status = entities.TaskStatusInactive
	assert.False(t, s.AddTask(inactive, noopCallback))

	noCron := cronTask(2, "无表达式", "")
	noCron.CronExpression = nil
	assert.False(t, s.AddTask(noCron, noopCallback))

	assert.False(t, s.GetTaskStatus(1).Scheduled)
}

func TestAddTaskInvalidCron(t *testing.T) {
	s := newTestScheduler(t)
	assert.False(t, s.AddTask(cronTask(1, "坏表达式", "99 99 * * *"), noopCallback))
}

func TestAddRemoveTask(t *testing.T) {
	s := newTestScheduler(t)
	s.Start()

	require.True(t, s.AddTask(cronTask(1, "每分钟", "* * * * *"), noopCallback))

	status := s.GetTaskStatus(1)
	assert.True(t, status.Scheduled)
	assert.NotEmpty(t, status.NextRunTime)
	assert.False(t, status.Paused)

	assert.True(t, s.RemoveTask(1))
	assert.False(t, s.GetTaskStatus(1).Scheduled)

	// 二次移除不报错，返回 false
	assert.False(t, s.RemoveTask(1))
}

func TestUpdateTaskReplacesEntry(t *testing.T) {
	s := newTestScheduler(t)
	s.Start()

	require.True(t, s.AddTask(cronTask(1, "任务", "0 1 * * *"), noopCallback))
	require.True(t, s.UpdateTask(cronTask(1, "任务", "0 2 * * *"), noopCallback))

	stats := s.GetSchedulerStats()
	assert.Equal(t, 1, stats.ScheduledTasks)
	assert.Equal(t, 1, stats.TotalJobs)
}

func TestAddTaskWithTimezone(t *testing.T) {
	s := newTestScheduler(t)
	task := cronTask(1, "带时区", "30 8 * * *")
	task.Timezone = strptr("America/New_York")
	assert.True(t, s.AddTask(task, noopCallback))
}

func TestPauseResume(t *testing.T) {
	s := newTestScheduler(t)
	require.True(t, s.AddTask(cronTask(1, "任务", "* * * * *"), noopCallback))

	assert.False(t, s.PauseTask(99), "未调度的任务不能暂停")
	assert.True(t, s.PauseTask(1))
	assert.True(t, s.GetTaskStatus(1).Paused)

	// 暂停状态下触发被跳过
	var fired atomic.Int32
	s.mu.Lock()
	s.callbacks[1] = func(taskID int, triggeredBy string) { fired.Add(1) }
	s.mu.Unlock()
	s.fire(1, entities.TriggeredByCron, time.Now())
	assert.Zero(t, fired.Load())

	assert.True(t, s.ResumeTask(1))
	assert.False(t, s.GetTaskStatus(1).Paused)
	s.fire(1, entities.TriggeredByCron, time.Now())
	assert.Equal(t, int32(1), fired.Load())
}

func TestMisfireGraceSkip(t *testing.T) {
	s := NewTaskScheduler(SchedulerOptions{
		Location:     time.UTC,
		MaxWorkers:   2,
		MisfireGrace: time.Second,
	})
	defer s.Stop()

	var fired atomic.Int32
	require.True(t, s.AddTask(cronTask(1, "任务", "* * * * *"),
		func(taskID int, triggeredBy string) { fired.Add(1) }))

	// 计划触发时间远超宽限窗口，本次触发应被跳过
	s.fire(1, entities.TriggeredByCron, time.Now().Add(-time.Hour))
	assert.Zero(t, fired.Load())

	// 窗口内正常触发
	s.fire(1, entities.TriggeredByCron, time.Now())
	assert.Equal(t, int32(1), fired.Load())
}

func TestMisfireGraceSurvivesNextRecompute(t *testing.T) {
	// 引擎触发作业后会立刻用当前时间重算下一轮触发点，
	// 计划时间必须按触发逐次消费，不能被重算覆盖
	s := NewTaskScheduler(SchedulerOptions{
		Location:     time.UTC,
		MaxWorkers:   2,
		MisfireGrace: time.Second,
	})
	defer s.Stop()

	var fired atomic.Int32
	require.True(t, s.AddTask(cronTask(1, "任务", "* * * * *"),
		func(taskID int, triggeredBy string) { fired.Add(1) }))

	s.mu.Lock()
	tracked := s.schedules[1]
	s.mu.Unlock()
	require.NotNil(t, tracked)

	// 复刻引擎的调用顺序：迟到两小时的触发点先入队，
	// 触发后引擎马上重算出下一个未来触发点
	late := tracked.Next(time.Now().Add(-2 * time.Hour))
	require.True(t, time.Since(late) > time.Hour)
	future := tracked.Next(time.Now())
	require.True(t, future.After(time.Now()))

	// 作业 goroutine 此时才读取计划时间，取到的必须是迟到的那一轮
	s.fire(1, entities.TriggeredByCron, tracked.takePlanned())
	assert.Zero(t, fired.Load(), "超出宽限窗口的触发应被跳过")

	// 下一轮取到的是未来触发点，正常执行
	s.fire(1, entities.TriggeredByCron, tracked.takePlanned())
	assert.Equal(t, int32(1), fired.Load())
}

func TestInvokeSkipsConcurrentSameTask(t *testing.T) {
	s := newTestScheduler(t)

	block := make(chan struct{})
	var calls atomic.Int32
	callback := func(taskID int, triggeredBy string) {
		calls.Add(1)
		<-block
	}
	require.True(t, s.AddTask(cronTask(1, "慢任务", "* * * * *"), callback))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.invoke(1, entities.TriggeredByCron, callback)
	}()

	// 等首次执行进入回调
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)

	// 同一任务的并发触发被跳过而非排队
	s.invoke(1, entities.TriggeredByCron, callback)
	assert.Equal(t, int32(1), calls.Load())

	close(block)
	wg.Wait()

	// 执行结束后可以再次触发
	block = make(chan struct{})
	close(block)
	s.invoke(1, entities.TriggeredByCron, callback)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvokeRecoversPanic(t *testing.T) {
	s := newTestScheduler(t)
	assert.NotPanics(t, func() {
		s.invoke(1, entities.TriggeredByCron, func(taskID int, triggeredBy string) {
			panic("回调崩溃")
		})
	})
	// panic 后去重门必须释放
	var fired atomic.Int32
	s.invoke(1, entities.TriggeredByCron, func(taskID int, triggeredBy string) { fired.Add(1) })
	assert.Equal(t, int32(1), fired.Load())
}

func TestExecuteNowAndCleanup(t *testing.T) {
	s := newTestScheduler(t)
	s.Start()

	done := make(chan struct{})
	task := cronTask(1, "手动任务", "")
	task.CronExpression = nil
	require.True(t, s.ExecuteNow(task, func(taskID int, triggeredBy string) {
		assert.Equal(t, entities.TriggeredByManual, triggeredBy)
		close(done)
	}))

	assert.Equal(t, 1, s.GetSchedulerStats().ManualTasks)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("手动执行未触发")
	}

	// 触发完成后一次性作业可被清理
	require.Eventually(t, func() bool {
		return s.CleanupCompletedJobs() == 1
	}, 3*time.Second, 100*time.Millisecond)
	assert.Equal(t, 0, s.GetSchedulerStats().ManualTasks)
}

func TestExecuteNowNilCallback(t *testing.T) {
	s := newTestScheduler(t)
	assert.False(t, s.ExecuteNow(cronTask(1, "任务", ""), nil))
}

func TestRescheduleAll(t *testing.T) {
	s := newTestScheduler(t)
	require.True(t, s.AddTask(cronTask(1, "旧任务", "* * * * *"), noopCallback))

	tasks := []entities.ExportTask{
		*cronTask(2, "新任务A", "0 * * * *"),
		*cronTask(3, "新任务B", "30 2 * * *"),
		*cronTask(4, "不可调度", ""),
	}
	tasks[2].CronExpression = nil

	added := s.RescheduleAll(tasks, noopCallback)
	assert.Equal(t, 2, added)
	assert.False(t, s.GetTaskStatus(1).Scheduled)
	assert.True(t, s.GetTaskStatus(2).Scheduled)
	assert.True(t, s.GetTaskStatus(3).Scheduled)
}

func TestStartStopIdempotent(t *testing.T) {
	s := NewTaskScheduler(SchedulerOptions{Location: time.UTC})
	assert.False(t, s.IsRunning())

	s.Start()
	s.Start()
	assert.True(t, s.IsRunning())

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestGetSchedulerStats(t *testing.T) {
	s := newTestScheduler(t)
	s.Start()
	require.True(t, s.AddTask(cronTask(1, "任务", "* * * * *"), noopCallback))

	stats := s.GetSchedulerStats()
	assert.True(t, stats.Running)
	assert.Equal(t, 1, stats.ScheduledTasks)
	assert.Equal(t, "UTC", stats.Timezone)
	assert.NotEmpty(t, stats.NextRunTime)
}
