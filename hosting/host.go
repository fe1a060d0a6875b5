// Package hosting 在容器之上运行托管服务。
// 服务以 HostedService 注册到容器，Host 负责启动、停止并在退出时释放容器。
package hosting

import (
	"context"
	"errors"
	"iter"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// HostedService 托管服务
type HostedService interface {
	// Start 在独立的 goroutine 中调用，允许阻塞到 ctx 取消。
	// 返回 context 之外的错误会触发整个 Host 关闭。
	Start(ctx context.Context) error

	// Stop 在关闭时按注册的逆序调用，需要遵守 ctx 的超时。
	Stop(ctx context.Context) error
}

// Host 托管服务宿主
type Host struct {
	container       *di.Container
	logger          logging.Logger
	shutdownTimeout time.Duration
}

// HostOption 配置 Host
type HostOption func(*Host)

// WithShutdownTimeout 设置停止服务的总超时，默认 5 秒
func WithShutdownTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		h.shutdownTimeout = d
	}
}

// WithHostLogger 设置日志记录器
func WithHostLogger(logger logging.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHost 创建宿主。容器的所有权交给 Host，Run 返回前会释放它。
func NewHost(c *di.Container, opts ...HostOption) *Host {
	h := &Host{
		container:       c,
		logger:          logging.Nop(),
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Container 返回宿主使用的容器
func (h *Host) Container() *di.Container {
	return h.container
}

// Run 启动容器中注册的全部托管服务（默认注册和命名注册），
// 阻塞到 ctx 取消或某个服务失败，然后逆序停止服务并释放容器。
func (h *Host) Run(ctx context.Context) error {
	seq, err := di.Resolve[iter.Seq[HostedService]](h.container)
	if err != nil {
		return errors.Join(err, h.container.Dispose())
	}
	services := slices.Collect(seq)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.logger.Info("启动托管服务", logging.F("count", len(services)))
	errCh := make(chan error, len(services))
	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Start(runCtx); err != nil && !isContextError(err) {
				h.logger.Error("托管服务失败", logging.F("index", i), logging.F("error", err))
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		h.logger.Info("收到停止信号")
	case runErr = <-errCh:
	}
	cancel()

	return errors.Join(runErr, h.shutdown(services, &wg))
}

func (h *Host) shutdown(services []HostedService, wg *sync.WaitGroup) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(ctx); err != nil {
			h.logger.Warn("停止托管服务失败", logging.F("index", i), logging.F("error", err))
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("等待托管服务退出超时")
		errs = append(errs, ctx.Err())
	}

	if err := h.container.Dispose(); err != nil {
		errs = append(errs, err)
	}
	h.logger.Info("托管服务已停止")
	return errors.Join(errs...)
}

// Run 创建宿主并运行到收到 SIGINT 或 SIGTERM
func Run(c *di.Container, opts ...HostOption) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewHost(c, opts...).Run(ctx)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
