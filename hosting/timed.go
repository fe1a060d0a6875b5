package hosting

import (
	"context"
	"time"

	"github.com/gocrud/ioc/logging"
)

// TimedService 按固定间隔执行任务的托管服务
type TimedService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   logging.Logger
}

// NewTimedService 创建定时服务，logger 为 nil 时不输出日志
func NewTimedService(name string, interval time.Duration, task func(ctx context.Context) error, logger logging.Logger) *TimedService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TimedService{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.WithFields(logging.F("service", name)),
	}
}

// Start 循环执行任务直到 ctx 取消。单次任务失败只记录日志。
func (s *TimedService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				s.logger.Error("定时任务失败", logging.F("error", err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop 无需额外清理，Start 随 ctx 取消退出
func (s *TimedService) Stop(context.Context) error {
	return nil
}
