package di

import (
	"reflect"
	"strings"
)

// MatchRank 覆盖与成员的匹配程度
type MatchRank int

const (
	NoMatch MatchRank = iota
	PartialMatch
	ExactMatch
)

// MemberKind 依赖槽位的种类
type MemberKind int

const (
	// MemberDependency 直接的契约依赖，例如集合元素或 BuilderContext.Resolve
	MemberDependency MemberKind = iota
	// MemberParameter 工厂或构造函数参数
	MemberParameter
	// MemberField 带 di 标签的结构体字段
	MemberField
)

// Member 描述一个待注入的依赖槽位。
type Member struct {
	Kind MemberKind
	// Declaring 声明该成员的类型（结构体或工厂返回类型）
	Declaring reflect.Type
	Name      string
	Position  int
	Contract  Contract
	Optional  bool
}

// ResolverOverride 在解析期间替换依赖值。
type ResolverOverride interface {
	Match(m Member) MatchRank
	Value(ctx *BuilderContext, m Member) (any, error)
}

// OverrideFactory 覆盖值为该类型时在使用时才计算
type OverrideFactory func(ctx *BuilderContext) (any, error)

type overrideBase struct {
	value  any
	target reflect.Type
}

func (o overrideBase) targets(m Member) bool {
	return o.target == nil || o.target == m.Declaring
}

func (o overrideBase) Value(ctx *BuilderContext, _ Member) (any, error) {
	if f, ok := o.value.(OverrideFactory); ok {
		return f(ctx)
	}
	return o.value, nil
}

// ParameterOverride 覆盖函数参数
type ParameterOverride struct {
	overrideBase
	position int
	typ      reflect.Type
}

// Parameter 按位置覆盖参数
func Parameter(position int, value any) *ParameterOverride {
	return &ParameterOverride{overrideBase: overrideBase{value: value}, position: position}
}

// ParameterOfType 覆盖所有该类型的参数
func ParameterOfType(t reflect.Type, value any) *ParameterOverride {
	return &ParameterOverride{overrideBase: overrideBase{value: value}, position: -1, typ: t}
}

// OnType 仅作用于声明类型为 t 的成员
func (o *ParameterOverride) OnType(t reflect.Type) *ParameterOverride {
	c := *o
	c.target = t
	return &c
}

func (o *ParameterOverride) Match(m Member) MatchRank {
	if m.Kind != MemberParameter || !o.targets(m) {
		return NoMatch
	}
	if o.position >= 0 {
		if m.Position == o.position {
			return ExactMatch
		}
		return NoMatch
	}
	if m.Contract.Type == o.typ {
		return PartialMatch
	}
	return NoMatch
}

// FieldOverride 覆盖结构体字段
type FieldOverride struct {
	overrideBase
	name string
}

// Field 按字段名覆盖，大小写不同的名称为部分匹配
func Field(name string, value any) *FieldOverride {
	return &FieldOverride{overrideBase: overrideBase{value: value}, name: name}
}

// OnType 仅作用于声明类型为 t 的成员
func (o *FieldOverride) OnType(t reflect.Type) *FieldOverride {
	c := *o
	c.target = t
	return &c
}

func (o *FieldOverride) Match(m Member) MatchRank {
	if m.Kind != MemberField || !o.targets(m) {
		return NoMatch
	}
	switch {
	case m.Name == o.name:
		return ExactMatch
	case strings.EqualFold(m.Name, o.name):
		return PartialMatch
	}
	return NoMatch
}

// DependencyOverride 按契约覆盖任意种类的依赖
type DependencyOverride struct {
	overrideBase
	contract Contract
	anyName  bool
}

// Dependency 覆盖指定契约
func Dependency(contract Contract, value any) *DependencyOverride {
	return &DependencyOverride{overrideBase: overrideBase{value: value}, contract: contract}
}

// DependencyOfType 覆盖该类型的任意名称依赖
func DependencyOfType(t reflect.Type, value any) *DependencyOverride {
	return &DependencyOverride{overrideBase: overrideBase{value: value}, contract: Contract{Type: t}, anyName: true}
}

// OnType 仅作用于声明类型为 t 的成员
func (o *DependencyOverride) OnType(t reflect.Type) *DependencyOverride {
	c := *o
	c.target = t
	return &c
}

func (o *DependencyOverride) Match(m Member) MatchRank {
	if !o.targets(m) {
		return NoMatch
	}
	switch {
	case !o.anyName && m.Contract == o.contract:
		return ExactMatch
	case o.anyName && m.Contract.Type == o.contract.Type:
		return PartialMatch
	}
	return NoMatch
}

// GetOverride 返回最匹配的覆盖，同级时后出现的优先
func GetOverride(overrides []ResolverOverride, m Member) (ResolverOverride, MatchRank) {
	var best ResolverOverride
	rank := NoMatch
	for _, o := range overrides {
		if r := o.Match(m); r != NoMatch && r >= rank {
			best, rank = o, r
		}
	}
	return best, rank
}
