package di

import (
	"fmt"
	"reflect"
	"sync"
)

// BuilderContext 一次依赖构造的帧。
//
// 嵌套依赖通过 Resolve 创建子帧，同一次顶层调用的所有帧共享一个错误槽。
type BuilderContext struct {
	Contract     Contract
	Registration *Registration
	Container    *Container
	Overrides    []ResolverOverride
	// Member 当前帧对应的依赖槽位，顶层帧为零值
	Member Member

	parent *BuilderContext
	slot   *errorSlot
	tree   *resolveTree
	depth  int
}

// Parent 返回上一层帧，顶层帧返回 nil
func (ctx *BuilderContext) Parent() *BuilderContext {
	return ctx.parent
}

// Depth 返回帧深度，顶层为 0
func (ctx *BuilderContext) Depth() int {
	return ctx.depth
}

// Path 返回从顶层请求到当前帧的契约链
func (ctx *BuilderContext) Path() []Contract {
	path := make([]Contract, ctx.depth+1)
	for f := ctx; f != nil; f = f.parent {
		path[f.depth] = f.Contract
	}
	return path
}

// IsFaulted 判断本次调用树是否已经失败
func (ctx *BuilderContext) IsFaulted() bool {
	return ctx.slot.faulted()
}

// Resolve 在当前调用树中解析一个契约依赖，覆盖同样生效
func (ctx *BuilderContext) Resolve(contract Contract) (any, error) {
	return ctx.ResolveMember(Member{Kind: MemberDependency, Contract: contract})
}

// ResolveMember 解析一个依赖槽位。匹配的覆盖优先于容器解析。
func (ctx *BuilderContext) ResolveMember(m Member) (any, error) {
	if o, rank := GetOverride(ctx.Overrides, m); rank != NoMatch {
		v, err := o.Value(ctx, m)
		if err != nil {
			return nil, ctx.failUser(err)
		}
		return v, nil
	}

	if m.Optional {
		v, ok := ctx.TryResolve(m)
		if !ok {
			return nil, nil
		}
		return v, nil
	}

	return ctx.Container.engine.resolve(ctx.child(m))
}

// TryResolve 在独立的错误槽中解析依赖，失败不会影响当前调用树
func (ctx *BuilderContext) TryResolve(m Member) (any, bool) {
	if o, rank := GetOverride(ctx.Overrides, m); rank != NoMatch {
		v, err := o.Value(ctx, m)
		return v, err == nil
	}

	sub := ctx.child(m)
	sub.slot = &errorSlot{}
	v, err := ctx.Container.engine.resolve(sub)
	if err != nil || sub.slot.faulted() {
		sub.slot.recover()
		return nil, false
	}
	return v, true
}

func (ctx *BuilderContext) child(m Member) *BuilderContext {
	return &BuilderContext{
		Contract:  m.Contract,
		Container: ctx.Container,
		Overrides: ctx.Overrides,
		Member:    m,
		parent:    ctx,
		slot:      ctx.slot,
		tree:      ctx.tree,
		depth:     ctx.depth + 1,
	}
}

// fail 记录容器内部错误，返回同一个错误便于直接 return
func (ctx *BuilderContext) fail(err error) error {
	ctx.slot.fault(err, false)
	return err
}

// failf 记录带说明的解析错误
func (ctx *BuilderContext) failf(cause error, format string, args ...any) error {
	return ctx.fail(&ResolutionFailedError{
		Contract: ctx.Contract,
		Message:  fmt.Sprintf(format, args...),
		Path:     ctx.Path(),
		Cause:    cause,
	})
}

// failUser 记录用户代码返回的错误
func (ctx *BuilderContext) failUser(err error) error {
	ctx.slot.fault(err, true)
	return err
}

// cycle 检查当前契约是否已出现在上层帧中
func (ctx *BuilderContext) cycle() error {
	for f := ctx.parent; f != nil; f = f.parent {
		if f.Contract == ctx.Contract {
			return &CircularDependencyError{Path: ctx.Path()}
		}
	}
	return nil
}

// errorSlot 调用树共享的错误槽，只记录第一个错误
type errorSlot struct {
	err  error
	user bool
	held []Synchronized
}

func (s *errorSlot) fault(err error, user bool) {
	if s.err == nil {
		s.err = err
		s.user = user
	}
}

func (s *errorSlot) faulted() bool {
	return s.err != nil
}

func (s *errorSlot) acquired(l Synchronized) {
	s.held = append(s.held, l)
}

func (s *errorSlot) released(l Synchronized) {
	for i := len(s.held) - 1; i >= 0; i-- {
		if s.held[i] == l {
			s.held = append(s.held[:i], s.held[i+1:]...)
			return
		}
	}
}

// recover 按获取的逆序释放仍持有的锁
func (s *errorSlot) recover() {
	for i := len(s.held) - 1; i >= 0; i-- {
		s.held[i].Recover()
	}
	s.held = nil
}

// resolveTree 一次顶层解析内共享的 PerResolve 值
type resolveTree struct {
	mu     sync.Mutex
	values map[LifetimeManager]any
}

func newResolveTree() *resolveTree {
	return &resolveTree{values: make(map[LifetimeManager]any)}
}

func (t *resolveTree) load(key LifetimeManager) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[key]
	return v, ok
}

func (t *resolveTree) store(key LifetimeManager, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = value
}

// valueOf 将解析结果转换为目标类型的 reflect.Value
func valueOf(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("di: 无法将 nil 赋给 %v", t)
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("di: %v 不能赋给 %v", rv.Type(), t)
	}
	return rv, nil
}
