// pkg/scheduler/scheduler.go
package scheduler

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/lk2023060901/zeus-link/pkg/clock"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("scheduler: job not found")
	// ErrUnboundJob 配置声明的任务没有绑定函数
	ErrUnboundJob = errors.New("scheduler: job has no bound function")
)

// Scheduler 轮询驱动的维护任务调度器
//
// Scheduler 自身是注册表中的服务：每次 Poll 用时钟的当前时间检查到期任务并在清扫协程中同步执行，
// 因此任务必须非阻塞。
type Scheduler struct {
	service.Base

	config *Config
	clock  clock.Clock
	parser cron.Parser
	logger logger.Logger

	jobs   []*jobEntry
	nextID JobID
}

// SchedulerOption 调度器选项
type SchedulerOption func(*Scheduler)

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 创建调度器并注册到 reg
func New(reg *service.Registry, clk clock.Clock, cfg *Config, opts ...SchedulerOption) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	fieldsMask := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if cfg.WithSeconds {
		fieldsMask |= cron.Second
	}

	s := &Scheduler{
		config: cfg,
		clock:  clk,
		parser: cron.NewParser(fieldsMask),
		logger: logger.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.Attach(reg, s, service.Owned)
	return s
}

// AddJob 添加任务
func (s *Scheduler) AddJob(spec string, job Job) (JobID, error) {
	entry := &jobEntry{name: job.Name(), spec: spec, job: job}
	return s.addEntry(entry)
}

// AddFunc 添加函数任务
func (s *Scheduler) AddFunc(name, spec string, fn JobFunc) (JobID, error) {
	entry := &jobEntry{name: name, spec: spec, fn: fn}
	return s.addEntry(entry)
}

// BindConfigured 按名称为配置中声明的任务绑定函数，未绑定的声明返回 ErrUnboundJob。
func (s *Scheduler) BindConfigured(funcs map[string]JobFunc) error {
	for _, jc := range s.config.Jobs {
		fn, ok := funcs[jc.Name]
		if !ok {
			return errors.Wrapf(ErrUnboundJob, "job %q", jc.Name)
		}
		if _, err := s.AddFunc(jc.Name, jc.Spec, fn); err != nil {
			return err
		}
	}
	return nil
}

// addEntry 解析表达式并保存任务条目
func (s *Scheduler) addEntry(entry *jobEntry) (JobID, error) {
	schedule, err := s.parser.Parse(entry.spec)
	if err != nil {
		return 0, errors.Wrapf(err, "scheduler: failed to add job %s", entry.name)
	}

	s.nextID++
	entry.id = s.nextID
	entry.schedule = schedule
	entry.next = schedule.Next(s.clock.Now())
	s.jobs = append(s.jobs, entry)

	s.logger.Info("job added", logger.Fields(
		"job_id", entry.id,
		"job_name", entry.name,
		"spec", entry.spec,
		"next_run", entry.next,
	)...)

	return entry.id, nil
}

// Poll 执行所有到期的任务
func (s *Scheduler) Poll() {
	now := s.clock.Now()
	for _, entry := range s.jobs {
		if !entry.runNow && now.Before(entry.next) {
			continue
		}
		entry.runNow = false
		s.runEntry(entry, now)
		entry.next = entry.schedule.Next(now)
	}
}

// runEntry 执行任务，添加中间件功能
func (s *Scheduler) runEntry(entry *jobEntry, now time.Time) {
	entry.lastRun = now
	if s.config.Middleware.Logging {
		s.logger.Debug("job started", logger.Fields(
			"job_id", entry.id,
			"job_name", entry.name,
		)...)
	}

	var jobErr error
	defer func() {
		entry.runCount++
		if jobErr != nil {
			entry.failCount++
		}
		if s.config.Middleware.Logging && jobErr != nil {
			s.logger.Error("job failed", logger.Fields(
				"job_id", entry.id,
				"job_name", entry.name,
				"error", jobErr,
			)...)
		}
	}()

	if s.config.Middleware.Recovery {
		defer func() {
			if r := recover(); r != nil {
				jobErr = fmt.Errorf("job panicked: %v", r)
			}
		}()
	}

	jobErr = entry.run(now)
}

// RemoveJob 移除任务
func (s *Scheduler) RemoveJob(id JobID) {
	for i, entry := range s.jobs {
		if entry.id != id {
			continue
		}
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		s.logger.Info("job removed", logger.Fields(
			"job_id", id,
			"job_name", entry.name,
		)...)
		return
	}
}

// GetJob 获取任务信息
func (s *Scheduler) GetJob(id JobID) (*JobInfo, bool) {
	for _, entry := range s.jobs {
		if entry.id == id {
			return entry.info(), true
		}
	}
	return nil, false
}

// ListJobs 按添加顺序列出所有任务
func (s *Scheduler) ListJobs() []*JobInfo {
	jobs := make([]*JobInfo, 0, len(s.jobs))
	for _, entry := range s.jobs {
		jobs = append(jobs, entry.info())
	}
	return jobs
}

// RunNow 让任务在下一次 Poll 时执行（不影响调度）
func (s *Scheduler) RunNow(id JobID) error {
	for _, entry := range s.jobs {
		if entry.id == id {
			entry.runNow = true
			return nil
		}
	}
	return errors.Wrapf(ErrJobNotFound, "job %d", id)
}
