package di

import (
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/gocrud/ioc/logging"
)

type aggregateKind int

const (
	// aggregateSlice []T：只包含命名注册
	aggregateSlice aggregateKind = iota
	// aggregateSeq iter.Seq[T]：命名注册加默认注册
	aggregateSeq
)

// aggregate 集合解析的缓存注册数据
type aggregate struct {
	kind aggregateKind
	typ  reflect.Type
	elem reflect.Type
	meta atomic.Pointer[aggregateMeta]
}

// aggregateMeta 成员列表及构建时各层级的版本号
type aggregateMeta struct {
	versions []uint64
	refs     []aggregateRef
}

type aggregateRef struct {
	level    int
	position int
	contract Contract
}

// aggregateOf 判断 t 是否为可聚合的集合类型
func aggregateOf(t reflect.Type) (*aggregate, bool) {
	switch {
	case t.Kind() == reflect.Slice:
		return &aggregate{kind: aggregateSlice, typ: t, elem: t.Elem()}, true
	case isSeq(t):
		return &aggregate{kind: aggregateSeq, typ: t, elem: t.In(0).In(0)}, true
	}
	return nil, false
}

// isSeq 识别 iter.Seq[T]
func isSeq(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.PkgPath() != "iter" || !strings.HasPrefix(t.Name(), "Seq[") {
		return false
	}
	if t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	yield := t.In(0)
	return yield.Kind() == reflect.Func && yield.NumIn() == 1 && yield.NumOut() == 1
}

// aggregateRegistration 返回容器中该集合类型的缓存注册，首次访问时创建
func (c *Container) aggregateRegistration(t reflect.Type) (*Registration, bool) {
	if v, ok := c.aggregates.Load(t); ok {
		return v.(*Registration), true
	}
	agg, ok := aggregateOf(t)
	if !ok {
		return nil, false
	}
	reg := &Registration{
		Category: CategoryCache,
		Lifetime: Transient(),
		Data:     agg,
		contract: Contract{Type: t},
		owner:    c,
	}
	actual, _ := c.aggregates.LoadOrStore(t, reg)
	return actual.(*Registration), true
}

func (m *aggregateMeta) current(ancestry []*Container) bool {
	for i, lc := range ancestry {
		if lc.scope.Version() != m.versions[i] {
			return false
		}
	}
	return true
}

// metadata 返回最新的成员列表，版本变化时重建并以 CAS 发布
func (a *aggregate) metadata(c *Container) *aggregateMeta {
	old := a.meta.Load()
	if old != nil && old.current(c.ancestry) {
		return old
	}

	m := a.collect(c.ancestry)
	if !a.meta.CompareAndSwap(old, m) {
		if cur := a.meta.Load(); cur != nil && cur.current(c.ancestry) {
			return cur
		}
	}
	return m
}

// collect 从根到当前容器收集成员，被近层覆盖的契约只保留最近的一个
func (a *aggregate) collect(ancestry []*Container) *aggregateMeta {
	n := len(ancestry)
	m := &aggregateMeta{versions: make([]uint64, n)}
	snapshots := make([][]entry, n)
	for level, lc := range ancestry {
		snapshots[level], m.versions[level] = lc.scope.Snapshot()
	}

	winners := make(map[Contract]int)
	for level, entries := range snapshots {
		for _, e := range entries {
			if e.Value.origin != originUser {
				continue
			}
			if _, seen := winners[e.Key]; !seen {
				winners[e.Key] = level
			}
		}
	}

	for level := n - 1; level >= 0; level-- {
		for _, e := range snapshots[level] {
			if winners[e.Key] != level || e.Value.origin != originUser || !a.accepts(e.Key, e.Value) {
				continue
			}
			m.refs = append(m.refs, aggregateRef{level: level, position: e.Position, contract: e.Key})
		}
	}
	return m
}

func (a *aggregate) accepts(key Contract, reg *Registration) bool {
	if key.Type == nil || !reg.visible() {
		return false
	}
	if a.kind == aggregateSlice && key.Name == "" {
		return false
	}
	return key.Type.AssignableTo(a.elem)
}

// resolve 集合的管道：逐个解析成员，失败的成员被跳过
func (a *aggregate) resolve(ctx *BuilderContext) (any, error) {
	meta := a.metadata(ctx.Container)
	values := make([]reflect.Value, 0, len(meta.refs))

	add := func(contract Contract) {
		v, ok := ctx.TryResolve(Member{Kind: MemberDependency, Declaring: a.typ, Contract: contract})
		if !ok {
			ctx.Container.logger.Debug("跳过集合成员",
				logging.F("collection", a.typ.String()),
				logging.F("contract", contract.String()),
			)
			return
		}
		rv, err := valueOf(v, a.elem)
		if err != nil {
			return
		}
		values = append(values, rv)
	}

	if len(meta.refs) == 0 {
		// 没有任何注册时尝试解析元素类型本身
		add(Contract{Type: a.elem})
	} else {
		for _, ref := range meta.refs {
			add(ref.contract)
		}
	}

	return a.build(values), nil
}

func (a *aggregate) build(values []reflect.Value) any {
	items := reflect.MakeSlice(reflect.SliceOf(a.elem), len(values), len(values))
	for i, v := range values {
		items.Index(i).Set(v)
	}

	if a.kind == aggregateSlice {
		if items.Type() != a.typ {
			return items.Convert(a.typ).Interface()
		}
		return items.Interface()
	}

	seq := reflect.MakeFunc(a.typ, func(args []reflect.Value) []reflect.Value {
		yield := args[0]
		for i := 0; i < items.Len(); i++ {
			if !yield.Call([]reflect.Value{items.Index(i)})[0].Bool() {
				break
			}
		}
		return nil
	})
	return seq.Interface()
}
