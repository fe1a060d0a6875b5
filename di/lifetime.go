package di

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// LifetimeKind 定义了服务的生命周期。
type LifetimeKind int

const (
	// LifetimeTransient 每次请求创建一个新实例。
	LifetimeTransient LifetimeKind = iota
	// LifetimeSingleton 注册所在容器创建一个实例，容器释放时一并释放。
	LifetimeSingleton
	// LifetimeHierarchical 每个解析它的子容器各自持有一个实例。
	LifetimeHierarchical
	// LifetimePerResolve 一次顶层解析调用内共享一个实例。
	LifetimePerResolve
	// LifetimeExternal 缓存实例，但由外部负责释放。
	LifetimeExternal
)

func (k LifetimeKind) String() string {
	switch k {
	case LifetimeTransient:
		return "transient"
	case LifetimeSingleton:
		return "singleton"
	case LifetimeHierarchical:
		return "hierarchical"
	case LifetimePerResolve:
		return "per_resolve"
	case LifetimeExternal:
		return "external"
	default:
		return fmt.Sprintf("LifetimeKind(%d)", int(k))
	}
}

// ParseLifetime 从字符串解析生命周期，不区分大小写
func ParseLifetime(s string) (LifetimeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transient":
		return LifetimeTransient, nil
	case "singleton":
		return LifetimeSingleton, nil
	case "hierarchical", "scoped":
		return LifetimeHierarchical, nil
	case "per_resolve", "perresolve", "per-resolve":
		return LifetimePerResolve, nil
	case "external":
		return LifetimeExternal, nil
	}
	return 0, fmt.Errorf("di: 未知的生命周期 %q", s)
}

// LifetimeManager 管理注册的缓存值。
// GetValue 返回 false 表示没有缓存值，需要执行构造管道。
type LifetimeManager interface {
	Kind() LifetimeKind
	GetValue(ctx *BuilderContext) (any, bool)
	SetValue(ctx *BuilderContext, value any)
	// Clone 返回同类型的新管理器，不携带缓存值
	Clone() LifetimeManager
}

// Synchronized 由首次构造期间需要持锁的生命周期实现。
//
// 引擎在未命中缓存时调用 Enter 获取锁，构造成功后 SetValue 释放锁；
// 构造失败时由顶层调用 Recover 释放。Recover 可以重复调用。
type Synchronized interface {
	LifetimeManager
	Enter()
	Recover()
}

// ownership 标记容器是否负责释放缓存值
type ownership interface {
	OwnsValue() bool
}

// NewLifetime 按类型创建生命周期管理器
func NewLifetime(kind LifetimeKind) LifetimeManager {
	switch kind {
	case LifetimeSingleton:
		return Singleton()
	case LifetimeHierarchical:
		return Hierarchical()
	case LifetimePerResolve:
		return PerResolve()
	case LifetimeExternal:
		return External()
	default:
		return Transient()
	}
}

type transientLifetime struct{}

// Transient 从不缓存
func Transient() LifetimeManager { return transientLifetime{} }

func (transientLifetime) Kind() LifetimeKind                   { return LifetimeTransient }
func (transientLifetime) GetValue(*BuilderContext) (any, bool) { return nil, false }
func (transientLifetime) SetValue(*BuilderContext, any)        {}
func (transientLifetime) Clone() LifetimeManager               { return transientLifetime{} }

// synchronizedLifetime 首次构造期间持有互斥锁，之后无锁读取
type synchronizedLifetime struct {
	kind  LifetimeKind
	owns  bool
	value atomic.Pointer[any]
	lock  sync.Mutex
	held  atomic.Bool
}

// Singleton 容器控制的单例，容器释放时释放实例
func Singleton() LifetimeManager {
	return &synchronizedLifetime{kind: LifetimeSingleton, owns: true}
}

// Hierarchical 每个子容器各自一个实例
func Hierarchical() LifetimeManager {
	return &synchronizedLifetime{kind: LifetimeHierarchical, owns: true}
}

// External 缓存实例但不负责释放
func External() LifetimeManager {
	return &synchronizedLifetime{kind: LifetimeExternal}
}

func (l *synchronizedLifetime) Kind() LifetimeKind { return l.kind }

func (l *synchronizedLifetime) OwnsValue() bool { return l.owns }

func (l *synchronizedLifetime) GetValue(*BuilderContext) (any, bool) {
	if p := l.value.Load(); p != nil {
		return *p, true
	}
	return nil, false
}

func (l *synchronizedLifetime) SetValue(_ *BuilderContext, value any) {
	l.value.Store(&value)
	l.Recover()
}

func (l *synchronizedLifetime) Enter() {
	l.lock.Lock()
	l.held.Store(true)
}

func (l *synchronizedLifetime) Recover() {
	if l.held.CompareAndSwap(true, false) {
		l.lock.Unlock()
	}
}

func (l *synchronizedLifetime) Clone() LifetimeManager {
	return &synchronizedLifetime{kind: l.kind, owns: l.owns}
}

// perResolveLifetime 以自身指针为键，字段保证不同实例地址不同
type perResolveLifetime struct {
	_ byte
}

// PerResolve 一次顶层解析内共享实例
func PerResolve() LifetimeManager { return &perResolveLifetime{} }

func (*perResolveLifetime) Kind() LifetimeKind { return LifetimePerResolve }

func (l *perResolveLifetime) GetValue(ctx *BuilderContext) (any, bool) {
	if ctx == nil || ctx.tree == nil {
		return nil, false
	}
	return ctx.tree.load(l)
}

func (l *perResolveLifetime) SetValue(ctx *BuilderContext, value any) {
	if ctx == nil || ctx.tree == nil {
		return
	}
	ctx.tree.store(l, value)
}

func (*perResolveLifetime) Clone() LifetimeManager { return &perResolveLifetime{} }
