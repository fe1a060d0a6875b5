// Package di 实现分层的依赖注入容器。
//
// 容器按 (类型, 名称) 契约保存注册，子容器可以覆盖祖先容器的注册而不影响祖先。
// 解析顺序为：精确匹配（从近到远）、开放泛型特化、集合（[]T 与 iter.Seq[T]）、
// 未注册具体类型的自动构造。
//
// 基本用法：
//
//	c := di.New()
//	di.RegisterType[Repository, *SQLRepository](c, di.WithSingleton())
//	di.RegisterFactory[*Service](c, NewService)
//
//	svc, err := di.Resolve[*Service](c)
package di

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gocrud/ioc/di/registry"
	"github.com/gocrud/ioc/logging"
)

type entry = registry.Entry[Contract, *Registration]

// Container 依赖注入容器，可安全地并发使用。
//
// 注入到工厂函数参数的 *Container 是绑定当前解析帧的句柄：
// 工厂执行期间通过它发起的解析与外层属于同一棵调用树，
// 共享循环检测和 PerResolve 实例。工厂返回后句柄等同于容器本身。
type Container struct {
	*state
	// frame 句柄绑定的帧，为 nil 时按顶层调用解析
	frame atomic.Pointer[BuilderContext]
}

// state 容器的共享状态，句柄之间共用
type state struct {
	self     *Container
	name     string
	parent   *Container
	ancestry []*Container
	scope    *registry.Scope[Contract, *Registration]

	engine          *engine
	logger          logging.Logger
	defaultLifetime LifetimeKind

	// aggregates 集合类型 -> CategoryCache 注册
	aggregates sync.Map

	mu       sync.Mutex
	children []*Container
	owned    []*disposer
	disposed atomic.Bool
}

// New 创建根容器
func New(opts ...ContainerOption) *Container {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Planner == nil {
		planner := NewPlanner()
		for _, ctor := range o.Constructors {
			if err := planner.AddConstructor(ctor); err != nil {
				panic(fmt.Sprintf("di: 无效的构造函数 %T: %v", ctor, err))
			}
		}
		o.Planner = planner
	}

	c := &Container{state: &state{
		name:            o.Name,
		scope:           registry.New[Contract, *Registration](),
		engine:          newEngine(o.Planner, o.Logger, o.Diagnostics),
		logger:          o.Logger,
		defaultLifetime: o.DefaultLifetime,
	}}
	c.self = c
	c.ancestry = []*Container{c}
	return c
}

// Name 返回容器名称
func (c *Container) Name() string {
	return c.name
}

// Parent 返回父容器，根容器返回 nil
func (c *Container) Parent() *Container {
	return c.parent
}

// CreateChildContainer 创建子容器。子容器共享父容器的解析引擎，
// 它的注册只对自身及后代可见。
func (c *Container) CreateChildContainer(name string) *Container {
	child := &Container{state: &state{
		name:            name,
		parent:          c.self,
		scope:           c.scope.CreateChildScope(),
		engine:          c.engine,
		logger:          c.logger,
		defaultLifetime: c.defaultLifetime,
	}}
	child.self = child
	child.ancestry = make([]*Container, 0, len(c.ancestry)+1)
	child.ancestry = append(child.ancestry, child)
	child.ancestry = append(child.ancestry, c.ancestry...)

	c.mu.Lock()
	if c.disposed.Load() {
		child.disposed.Store(true)
	} else {
		c.children = append(c.children, child)
	}
	c.mu.Unlock()
	return child
}

// Register 在当前容器中注册契约。已存在的同一契约会被替换，
// 被替换注册所持有的值随即释放。
func (c *Container) Register(contract Contract, reg *Registration) error {
	if c.disposed.Load() {
		return ErrDisposed
	}
	if reg == nil {
		return &RegistrationError{Contract: contract, Reason: "注册为 nil"}
	}
	if reg.owner != nil {
		return &RegistrationError{Contract: contract, Reason: "注册对象已被使用"}
	}
	if err := checkRegistration(contract, reg); err != nil {
		return err
	}

	if reg.Lifetime == nil {
		if reg.Category == CategoryInstance {
			reg.Lifetime = External()
		} else {
			reg.Lifetime = NewLifetime(c.defaultLifetime)
		}
	}
	reg.contract = contract
	reg.owner = c.self

	if reg.Category == CategoryInstance {
		if _, ok := reg.Lifetime.(Synchronized); ok {
			reg.Lifetime.SetValue(nil, reg.Data)
			if o, ok := reg.Lifetime.(ownership); ok && o.OwnsValue() {
				c.track(reg, reg.Data)
			}
		}
	}

	old, replaced := c.scope.Add(contract, reg)
	if replaced {
		c.releaseReplaced(old)
	}

	c.logger.Debug("注册服务",
		logging.F("contract", contract.String()),
		logging.F("category", reg.Category.String()),
		logging.F("lifetime", reg.Lifetime.Kind().String()),
		logging.F("replaced", replaced),
	)
	return nil
}

// releaseReplaced 释放被替换注册持有的值，失败只记录日志
func (c *Container) releaseReplaced(old *Registration) {
	if old == nil {
		return
	}
	if err := old.release(); err != nil {
		c.logger.Warn("释放被替换的注册失败",
			logging.F("contract", old.contract.String()),
			logging.F("error", err),
		)
	}
}

// checkRegistration 校验注册数据与契约类型匹配
func checkRegistration(contract Contract, reg *Registration) error {
	fail := func(format string, args ...any) error {
		return &RegistrationError{Contract: contract, Reason: fmt.Sprintf(format, args...)}
	}

	if contract.IsGeneric() {
		if _, ok := reg.Data.(GenericFactory); !ok || reg.Category != CategoryFactory {
			return fail("开放泛型只能注册 GenericFactory")
		}
		return nil
	}
	if contract.Type == nil {
		return fail("契约类型为空")
	}

	switch reg.Category {
	case CategoryType:
		target := reg.MappedTo
		if target == nil {
			target = contract.Type
		}
		if !target.AssignableTo(contract.Type) {
			return fail("%v 不能赋给 %v", target, contract.Type)
		}

	case CategoryFactory:
		switch reg.Data.(type) {
		case Pipeline:
			return nil
		case GenericFactory:
			return fail("GenericFactory 只能注册到开放泛型契约")
		}
		fn := reflect.ValueOf(reg.Data)
		if err := checkFactory(fn); err != nil {
			return fail("%v", err)
		}
		out := fn.Type().Out(0)
		if out.Kind() != reflect.Interface && !out.AssignableTo(contract.Type) {
			return fail("工厂返回 %v，不能赋给 %v", out, contract.Type)
		}

	case CategoryInstance:
		if reg.Data != nil && !reflect.TypeOf(reg.Data).AssignableTo(contract.Type) {
			return fail("实例类型 %T 不能赋给 %v", reg.Data, contract.Type)
		}

	case CategoryInternal:
		if _, ok := reg.Data.(Pipeline); !ok {
			return fail("内部注册的数据必须是 Pipeline")
		}

	default:
		return fail("不能注册 %v 种类", reg.Category)
	}
	return nil
}

// Resolve 解析类型 t 的命名注册，name 为空时解析默认注册
func (c *Container) Resolve(t reflect.Type, name string, overrides ...ResolverOverride) (any, error) {
	return c.ResolveContract(Contract{Type: t, Name: name}, overrides...)
}

// ResolveContract 解析契约。
//
// 用户工厂返回的错误（包括恢复的 panic）原样返回，
// 其他失败返回 *ResolutionFailedError。
func (c *Container) ResolveContract(contract Contract, overrides ...ResolverOverride) (any, error) {
	return c.run(contract, overrides, c.engine.resolve)
}

// run 以 contract 为顶层帧执行 fn，并统一处理错误槽
func (c *Container) run(contract Contract, overrides []ResolverOverride, fn func(*BuilderContext) (any, error)) (any, error) {
	if c.disposed.Load() {
		return nil, ErrDisposed
	}

	slot := &errorSlot{}
	ctx := &BuilderContext{
		Contract:  contract,
		Container: c.self,
		Overrides: overrides,
		slot:      slot,
		tree:      newResolveTree(),
	}
	if f := c.frame.Load(); f != nil {
		// 工厂内部的解析挂在工厂的帧下，错误槽仍然独立
		ctx.parent = f
		ctx.tree = f.tree
		ctx.depth = f.depth + 1
	}

	v, err := fn(ctx)
	if err == nil && !slot.faulted() {
		return v, nil
	}

	slot.recover()
	if !slot.faulted() {
		slot.fault(err, false)
	}

	c.logger.Debug("解析失败",
		logging.F("contract", contract.String()),
		logging.F("error", slot.err),
	)
	if slot.user {
		return nil, slot.err
	}

	var rf *ResolutionFailedError
	if errors.As(slot.err, &rf) && rf.Contract == contract {
		return nil, rf
	}
	return nil, &ResolutionFailedError{Contract: contract, Path: ctx.Path(), Cause: slot.err}
}

// bind 返回绑定到 ctx 的句柄，unbind 之后句柄按顶层调用解析
func (c *Container) bind(ctx *BuilderContext) *Container {
	h := &Container{state: c.state}
	h.frame.Store(ctx)
	return h
}

func (c *Container) unbind() {
	c.frame.Store(nil)
}

// IsRegistered 判断契约在当前容器或祖先容器中是否已注册。
// 开放泛型注册使其所有实例化类型视为已注册。
func (c *Container) IsRegistered(t reflect.Type, name string) bool {
	contract := Contract{Type: t, Name: name}
	def, generic := contract.definition()
	for _, lc := range c.ancestry {
		if reg, ok := lc.scope.Get(contract); ok && reg.visible() {
			return true
		}
		if generic && lc.scope.Contains(def) {
			return true
		}
	}
	return false
}

// Registrations 返回当前容器可见的注册，被近层覆盖的祖先注册不包含在内
func (c *Container) Registrations() []RegistrationInfo {
	seen := make(map[Contract]bool)
	var infos []RegistrationInfo
	for level, lc := range c.ancestry {
		for _, e := range lc.scope.Entries() {
			reg := e.Value
			if seen[e.Key] || reg.origin != originUser {
				continue
			}
			seen[e.Key] = true
			if !reg.visible() {
				continue
			}
			infos = append(infos, RegistrationInfo{
				Contract: e.Key,
				Category: reg.Category,
				Lifetime: reg.Lifetime.Kind(),
				MappedTo: reg.MappedTo,
				Level:    level,
			})
		}
	}
	return infos
}
