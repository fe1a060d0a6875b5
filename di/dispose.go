package di

import (
	"errors"
	"io"
	"sync"

	"github.com/gocrud/ioc/logging"
)

// Disposable 由需要在容器释放时清理资源的服务实现。
// 同时实现 io.Closer 时优先调用 Dispose。
type Disposable interface {
	Dispose() error
}

// disposer 保证每个值只释放一次
type disposer struct {
	value any
	once  sync.Once
	err   error
}

func (d *disposer) dispose() error {
	d.once.Do(func() {
		switch v := d.value.(type) {
		case Disposable:
			d.err = v.Dispose()
		case io.Closer:
			d.err = v.Close()
		}
	})
	return d.err
}

func isDisposable(v any) bool {
	switch v.(type) {
	case Disposable, io.Closer:
		return true
	}
	return false
}

// track 记录容器负责释放的值
func (c *Container) track(reg *Registration, v any) {
	if !isDisposable(v) {
		return
	}
	d := &disposer{value: v}
	reg.disposer.Store(d)

	c.mu.Lock()
	c.owned = append(c.owned, d)
	c.mu.Unlock()
}

// Dispose 释放容器：先释放子容器，再按创建的逆序释放容器持有的值。
// 之后的 Register 和 Resolve 返回 ErrDisposed。重复调用返回 nil。
func (c *Container) Dispose() error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	children := c.children
	owned := c.owned
	c.children = nil
	c.owned = nil
	c.mu.Unlock()

	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(owned) - 1; i >= 0; i-- {
		if err := owned[i].dispose(); err != nil {
			c.logger.Warn("释放服务失败",
				logging.F("container", c.name),
				logging.F("error", err),
			)
			errs = append(errs, err)
		}
	}

	if c.parent != nil {
		c.parent.removeChild(c.self)
	}

	c.logger.Debug("容器已释放",
		logging.F("container", c.name),
		logging.F("owned", len(owned)),
	)
	return errors.Join(errs...)
}

func (c *Container) removeChild(child *Container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.children {
		if ch == child {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return
		}
	}
}
