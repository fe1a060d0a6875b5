package di

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/gocrud/ioc/logging"
)

// engine 解析引擎，由整棵容器树共享
type engine struct {
	plans  *planCache
	logger logging.Logger
	// invoke 执行管道，诊断模式下为带追踪的版本
	invoke func(ctx *BuilderContext, p Pipeline) (any, error)
}

func newEngine(planner BuildPlanner, logger logging.Logger, diagnostics bool) *engine {
	e := &engine{
		plans:  &planCache{planner: planner},
		logger: logger,
	}
	if diagnostics {
		e.invoke = e.invokeDiagnostic
	} else {
		e.invoke = invokePipeline
	}
	return e
}

// resolve 按 精确匹配 -> 泛型特化 -> 集合 -> 未注册构造 的顺序解析
func (e *engine) resolve(ctx *BuilderContext) (any, error) {
	if err := ctx.cycle(); err != nil {
		return nil, ctx.fail(err)
	}

	contract := ctx.Contract
	if contract.IsGeneric() {
		return nil, ctx.failf(nil, "开放泛型定义不能直接解析")
	}
	if contract.Type == nil {
		return nil, ctx.failf(nil, "契约类型为空")
	}

	c := ctx.Container

	// 1. 精确匹配，从近到远遍历所有层级
	// 派生注册（泛型特化、子容器收养的副本）只是缓存，由后面的步骤校验后使用
	for level, lc := range c.ancestry {
		reg, ok := lc.scope.Get(contract)
		if !ok || reg.origin != originUser {
			continue
		}
		if level > 0 && reg.Lifetime.Kind() == LifetimeHierarchical {
			reg = c.adopt(contract, reg)
		}
		return e.execute(ctx, reg)
	}

	// 2. 泛型特化
	if reg, level, ok := c.specialize(contract); ok {
		if level > 0 && reg.Lifetime.Kind() == LifetimeHierarchical {
			reg = c.adopt(contract, reg)
		}
		return e.execute(ctx, reg)
	}

	// 3. 集合
	if contract.Name == "" {
		if reg, ok := c.aggregateRegistration(contract.Type); ok {
			return e.execute(ctx, reg)
		}
	}

	// 4. 未注册构造
	switch contract.Type {
	case containerType:
		return c, nil
	case contextType:
		if ctx.parent == nil {
			return nil, ctx.failf(nil, "BuilderContext 只能作为依赖注入")
		}
		return ctx.parent, nil
	}
	entry := e.plans.get(contract.Type)
	if entry.err != nil {
		return nil, ctx.failf(fmt.Errorf("%w: %w", ErrNotRegistered, entry.err), "")
	}
	return e.invoke(ctx, entry.pipeline)
}

// execute 读取缓存值或执行注册的管道
func (e *engine) execute(ctx *BuilderContext, reg *Registration) (any, error) {
	ctx.Registration = reg
	lt := reg.Lifetime

	if v, ok := lt.GetValue(ctx); ok {
		return v, nil
	}

	lock, synchronized := lt.(Synchronized)
	if synchronized {
		lock.Enter()
		if v, ok := lt.GetValue(ctx); ok {
			lock.Recover()
			return v, nil
		}
		// 失败时锁留给顶层统一释放
		ctx.slot.acquired(lock)
	}

	p, err := reg.ensurePipeline(func(r *Registration) (Pipeline, error) {
		return e.build(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	v, err := e.invoke(ctx, p)
	if err != nil {
		return nil, err
	}
	if ctx.slot.faulted() {
		// 工厂忽略了嵌套依赖的失败，构造结果不完整，不缓存
		return nil, ctx.slot.err
	}

	lt.SetValue(ctx, v)
	if synchronized {
		ctx.slot.released(lock)
	}
	// 实例在注册时已经决定归属，收养的副本返回同一个实例，不再重复登记
	if o, ok := lt.(ownership); ok && o.OwnsValue() && reg.owner != nil && reg.Category != CategoryInstance {
		reg.owner.track(reg, v)
	}
	return v, nil
}

// build 按注册种类创建管道
func (e *engine) build(ctx *BuilderContext, r *Registration) (Pipeline, error) {
	switch r.Category {
	case CategoryInstance:
		v := r.Data
		return func(*BuilderContext) (any, error) { return v, nil }, nil

	case CategoryFactory:
		switch d := r.Data.(type) {
		case Pipeline:
			return d, nil
		case GenericFactory:
			return nil, ctx.failf(nil, "开放泛型注册不能直接解析")
		}
		fn := reflect.ValueOf(r.Data)
		if err := checkFactory(fn); err != nil {
			return nil, ctx.failf(err, "无效的工厂")
		}
		return newInvoker(fn, r.contract.Type).call, nil

	case CategoryType:
		target := r.MappedTo
		if target == nil {
			target = r.contract.Type
		}
		entry := e.plans.get(target)
		if entry.err != nil {
			return nil, ctx.failf(entry.err, "无法构造映射类型 %v", target)
		}
		return entry.pipeline, nil

	case CategoryCache:
		if agg, ok := r.Data.(*aggregate); ok {
			return agg.resolve, nil
		}

	case CategoryInternal:
		if p, ok := r.Data.(Pipeline); ok {
			return p, nil
		}
	}
	return nil, ctx.failf(nil, "不支持的注册种类 %v", r.Category)
}

// invokePipeline 执行管道，用户代码的 panic 作为用户错误记录
func invokePipeline(ctx *BuilderContext, p Pipeline) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = ctx.failUser(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	return p(ctx)
}

func (e *engine) invokeDiagnostic(ctx *BuilderContext, p Pipeline) (any, error) {
	start := time.Now()
	e.logger.Trace("开始构造",
		logging.F("contract", ctx.Contract.String()),
		logging.F("depth", ctx.depth),
	)

	v, err := invokePipeline(ctx, p)
	if err != nil {
		e.logger.Debug("构造失败",
			logging.F("contract", ctx.Contract.String()),
			logging.F("path", formatPath(ctx.Path())),
			logging.F("error", err),
		)
		return nil, err
	}

	e.logger.Trace("构造完成",
		logging.F("contract", ctx.Contract.String()),
		logging.F("elapsed", time.Since(start)),
	)
	return v, nil
}
