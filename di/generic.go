package di

import (
	"reflect"

	"github.com/gocrud/ioc/logging"
)

// GenericFactory 为开放泛型定义的某个实例化类型创建值。
// closed 为请求的封闭类型，例如 Repository[User]。
type GenericFactory func(ctx *BuilderContext, closed reflect.Type) (any, error)

// specialize 查找最近的开放泛型注册，并在找到它的层级写回封闭注册，
// 之后对同一封闭契约的解析复用写回的注册。
// 写回的注册记录来源，开放泛型注册被替换后重新特化。
func (c *Container) specialize(contract Contract) (*Registration, int, bool) {
	def, ok := contract.definition()
	if !ok {
		return nil, 0, false
	}

	for level, lc := range c.ancestry {
		greg, ok := lc.scope.Get(def)
		if !ok {
			continue
		}
		factory, ok := greg.Data.(GenericFactory)
		if !ok {
			continue
		}

		if r, ok := lc.scope.Get(contract); ok && (r.origin == originUser || r.source == greg) {
			return r, level, true
		}

		var stale *Registration
		reg := lc.scope.Update(contract, func(cur *Registration, ok bool) (*Registration, bool) {
			if ok && (cur.origin == originUser || cur.source == greg) {
				return cur, false
			}
			if ok {
				stale = cur
			}
			lc.logger.Debug("泛型特化",
				logging.F("generic", def.String()),
				logging.F("contract", contract.String()),
			)
			return lc.specialization(contract, greg, factory), true
		})
		lc.releaseReplaced(stale)
		return reg, level, true
	}
	return nil, 0, false
}

func (c *Container) specialization(contract Contract, greg *Registration, factory GenericFactory) *Registration {
	closed := contract.Type
	return &Registration{
		Category: CategoryFactory,
		Lifetime: greg.Lifetime.Clone(),
		Data: Pipeline(func(ctx *BuilderContext) (any, error) {
			v, err := factory(ctx, closed)
			if err != nil {
				return nil, ctx.failUser(err)
			}
			if v != nil && !reflect.TypeOf(v).AssignableTo(closed) {
				return nil, ctx.failf(nil, "泛型工厂返回了 %T", v)
			}
			return v, nil
		}),
		contract: contract,
		owner:    c.self,
		origin:   originSpecialized,
		source:   greg,
	}
}

// adopt 将祖先容器中的 Hierarchical 注册复制到当前容器。
// 祖先的注册被替换后，旧副本连同它的值一起释放。
func (c *Container) adopt(contract Contract, reg *Registration) *Registration {
	if r, ok := c.scope.Get(contract); ok && (r.origin == originUser || r.source == reg) {
		return r
	}

	var stale *Registration
	adopted := c.scope.Update(contract, func(cur *Registration, ok bool) (*Registration, bool) {
		if ok && (cur.origin == originUser || cur.source == reg) {
			return cur, false
		}
		if ok {
			stale = cur
		}
		r := reg.clone()
		r.contract = contract
		r.owner = c.self
		r.origin = originAdopted
		r.source = reg
		return r, true
	})
	c.releaseReplaced(stale)
	return adopted
}
