package di

import (
	"reflect"
)

// graphBuilder 静态检查依赖图。
type graphBuilder struct {
	c            *Container
	dependencies map[Contract][]Contract
}

// Validate 检查当前容器可见注册的依赖图，发现循环依赖时返回 *CircularDependencyError。
//
// 只检查工厂参数、构造函数参数和必需的 di 字段，未注册的依赖在这里跳过，
// 留给解析时报告。集合依赖不展开。
func (c *Container) Validate() error {
	if c.disposed.Load() {
		return ErrDisposed
	}
	g := &graphBuilder{c: c, dependencies: make(map[Contract][]Contract)}

	// 1. 提取所有服务的依赖关系
	var roots []Contract
	for _, info := range c.Registrations() {
		roots = append(roots, info.Contract)
	}

	// 2. 基于 DFS 检查环
	visited := make(map[Contract]bool)
	var stack []Contract
	onStack := make(map[Contract]bool)

	var visit func(Contract) error
	visit = func(u Contract) error {
		visited[u] = true
		onStack[u] = true
		stack = append(stack, u)

		for _, v := range g.inspect(u) {
			if onStack[v] {
				path := append([]Contract{}, stack[indexOf(stack, v):]...)
				return &CircularDependencyError{Path: append(path, v)}
			}
			if !visited[v] {
				if err := visit(v); err != nil {
					return err
				}
			}
		}

		onStack[u] = false
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, key := range roots {
		if !visited[key] {
			if err := visit(key); err != nil {
				return err
			}
		}
	}
	return nil
}

// inspect 返回契约的直接依赖，结果按契约缓存
func (g *graphBuilder) inspect(contract Contract) []Contract {
	if deps, ok := g.dependencies[contract]; ok {
		return deps
	}

	var deps []Contract
	if reg, ok := g.lookup(contract); ok {
		deps = g.registrationDependencies(reg)
	} else if contract.Type != nil && !g.isCollection(contract.Type) {
		// 未注册的具体类型按构建计划检查
		if entry := g.c.engine.plans.get(contract.Type); entry.err == nil {
			deps = entry.plan.dependencies()
		}
	}
	g.dependencies[contract] = deps
	return deps
}

func (g *graphBuilder) lookup(contract Contract) (*Registration, bool) {
	for _, lc := range g.c.ancestry {
		if reg, ok := lc.scope.Get(contract); ok {
			return reg, true
		}
	}
	return nil, false
}

func (g *graphBuilder) registrationDependencies(reg *Registration) []Contract {
	switch reg.Category {
	case CategoryFactory:
		fn := reflect.ValueOf(reg.Data)
		if _, ok := reg.Data.(Pipeline); ok || fn.Kind() != reflect.Func {
			return nil
		}
		if _, ok := reg.Data.(GenericFactory); ok {
			return nil
		}
		return parameterContracts(fn.Type())
	case CategoryType:
		target := reg.MappedTo
		if target == nil {
			target = reg.contract.Type
		}
		if entry := g.c.engine.plans.get(target); entry.err == nil {
			return entry.plan.dependencies()
		}
	}
	return nil
}

func (g *graphBuilder) isCollection(t reflect.Type) bool {
	return t.Kind() == reflect.Slice || isSeq(t)
}

func indexOf(stack []Contract, c Contract) int {
	for i, s := range stack {
		if s == c {
			return i
		}
	}
	return 0
}
