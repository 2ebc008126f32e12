// pkg/scheduler/job.go
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// JobID 任务唯一标识
type JobID int

// Job 任务接口
type Job interface {
	// Run 执行任务，now 为本次清扫的时钟时间；必须非阻塞
	Run(now time.Time) error
	// Name 返回任务名称
	Name() string
}

// JobFunc 函数类型任务
type JobFunc func(now time.Time) error

// JobInfo 任务信息
type JobInfo struct {
	// ID 任务唯一标识
	ID JobID

	// Name 任务名称
	Name string

	// Spec Cron 表达式
	Spec string

	// LastRun 上次执行时间
	LastRun time.Time

	// NextRun 下次执行时间
	NextRun time.Time

	// RunCount 执行次数
	RunCount int64

	// FailCount 失败次数
	FailCount int64
}

// jobEntry 内部任务条目
type jobEntry struct {
	id        JobID
	name      string
	spec      string
	schedule  cron.Schedule
	job       Job
	fn        JobFunc
	runCount  int64
	failCount int64
	lastRun   time.Time
	next      time.Time
	runNow    bool
}

func (e *jobEntry) run(now time.Time) error {
	if e.job != nil {
		return e.job.Run(now)
	}
	if e.fn != nil {
		return e.fn(now)
	}
	return nil
}

func (e *jobEntry) info() *JobInfo {
	return &JobInfo{
		ID:        e.id,
		Name:      e.name,
		Spec:      e.spec,
		LastRun:   e.lastRun,
		NextRun:   e.next,
		RunCount:  e.runCount,
		FailCount: e.failCount,
	}
}
