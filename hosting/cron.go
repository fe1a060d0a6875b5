package hosting

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/robfig/cron/v3"
)

// CronService 基于 cron 表达式调度任务的托管服务。
// 任务函数的参数在每次执行时从容器解析。
type CronService struct {
	container *di.Container
	logger    logging.Logger
	cron      *cron.Cron

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

type cronOptions struct {
	seconds  bool
	location *time.Location
	verbose  bool
}

// CronOption 配置 CronService
type CronOption func(*cronOptions)

// WithSeconds 启用秒级精度，表达式多出开头的秒字段
func WithSeconds() CronOption {
	return func(o *cronOptions) { o.seconds = true }
}

// WithLocation 设置时区，默认 UTC
func WithLocation(loc *time.Location) CronOption {
	return func(o *cronOptions) { o.location = loc }
}

// WithCronLogger 输出 cron 库内部的调度日志
func WithCronLogger() CronOption {
	return func(o *cronOptions) { o.verbose = true }
}

// NewCronService 创建定时任务服务
func NewCronService(c *di.Container, logger logging.Logger, opts ...CronOption) *CronService {
	o := &cronOptions{location: time.UTC}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	adapter := &cronLogger{logger: logger}
	cronOpts := []cron.Option{
		cron.WithLocation(o.location),
		cron.WithChain(cron.Recover(adapter)),
	}
	if o.verbose {
		cronOpts = append(cronOpts, cron.WithLogger(adapter))
	}
	if o.seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	return &CronService{
		container: c,
		logger:    logger,
		cron:      cron.New(cronOpts...),
		jobs:      make(map[string]cron.EntryID),
	}
}

// AddJob 添加任务，同名任务会被替换。
//
// 示例：
//
//	svc.AddJob("*/5 * * * *", "sync", func(repo *Repository, logger logging.Logger) error {
//	    return repo.Sync()
//	})
func (s *CronService) AddJob(spec, name string, handler any) error {
	if t := reflect.TypeOf(handler); t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("hosting: 任务 %q 的处理器必须是函数，得到 %T", name, handler)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.run(name, handler) })
	if err != nil {
		return fmt.Errorf("hosting: 添加任务 %q 失败: %w", name, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = id
	s.logger.Debug("注册定时任务", logging.F("job", name), logging.F("spec", spec))
	return nil
}

// RemoveJob 移除任务
func (s *CronService) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// Jobs 返回已注册任务的数量
func (s *CronService) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *CronService) run(name string, handler any) {
	s.logger.Debug("执行定时任务", logging.F("job", name))
	if err := di.Invoke(s.container, handler); err != nil {
		s.logger.Error("定时任务失败", logging.F("job", name), logging.F("error", err))
	}
}

// Start 启动调度器后立即返回
func (s *CronService) Start(context.Context) error {
	s.cron.Start()
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *CronService) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger 把 cron.Logger 适配到 logging.Logger
type cronLogger struct {
	logger logging.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(fields(keysAndValues), logging.F("error", err))...)
}

func fields(keysAndValues []any) []logging.Field {
	out := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, logging.F(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
