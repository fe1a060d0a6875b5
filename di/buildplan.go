package di

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// FieldInjection 包含需要注入的结构体字段的元数据。
type FieldInjection struct {
	Index       []int
	Name        string // 字段名
	Type        reflect.Type
	Optional    bool
	ServiceName string // 注入的服务名称
}

// BuildPlan 构造某个类型所需的元数据。
// Constructor 有效时调用构造函数，否则分配结构体并注入 Fields。
type BuildPlan struct {
	Type        reflect.Type
	Constructor reflect.Value
	Fields      []FieldInjection
}

// BuildPlanner 为未注册的具体类型生成构建计划。
// 无法构造的类型返回包装了 ErrNoBuildPlan 的错误。
type BuildPlanner interface {
	Plan(t reflect.Type) (*BuildPlan, error)
}

// DefaultPlanner 基于构造函数和 di 结构体标签生成计划。
//
// 标签格式与字段注入一致：
//
//	type Service struct {
//		Repo   Repository `di:""`           // 默认注册
//		Cache  Cache      `di:"redis"`      // 命名注册
//		Tracer Tracer     `di:"?"`          // 可选
//		Audit  Auditor    `di:"audit,optional"`
//	}
type DefaultPlanner struct {
	mu           sync.RWMutex
	constructors map[reflect.Type]reflect.Value
}

// NewPlanner 创建默认构建计划器
func NewPlanner() *DefaultPlanner {
	return &DefaultPlanner{constructors: make(map[reflect.Type]reflect.Value)}
}

// AddConstructor 注册构造函数，构造的类型为函数的第一个返回值。
// 函数可以额外返回一个 error。
func (p *DefaultPlanner) AddConstructor(fn any) error {
	v := reflect.ValueOf(fn)
	if err := checkFactory(v); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.constructors[v.Type().Out(0)] = v
	return nil
}

// Plan 实现 BuildPlanner
func (p *DefaultPlanner) Plan(t reflect.Type) (*BuildPlan, error) {
	p.mu.RLock()
	ctor, ok := p.constructors[t]
	p.mu.RUnlock()
	if ok {
		return &BuildPlan{Type: t, Constructor: ctor}, nil
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrNoBuildPlan, t)
	}

	fields, err := analyzeStruct(st)
	if err != nil {
		return nil, err
	}
	return &BuildPlan{Type: t, Fields: fields}, nil
}

// analyzeStruct 收集带 di 标签的字段，匿名嵌入的结构体不展开
func analyzeStruct(st reflect.Type) ([]FieldInjection, error) {
	var fields []FieldInjection
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		tagValue, hasTag := field.Tag.Lookup("di")
		if !hasTag {
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("%w: %v.%s 带有 di 标签但未导出", ErrNoBuildPlan, st, field.Name)
		}

		// 解析 tag: "name,option1,option2"
		parts := strings.Split(tagValue, ",")
		name := strings.TrimSpace(parts[0])
		optional := false

		// "di:?" 或 "di:optional" 时 name 为空
		if name == "?" || name == "optional" {
			name = ""
			optional = true
		}
		for _, part := range parts[1:] {
			part = strings.TrimSpace(part)
			if part == "optional" || part == "?" {
				optional = true
			}
		}

		fields = append(fields, FieldInjection{
			Index:       field.Index,
			Name:        field.Name,
			Type:        field.Type,
			Optional:    optional,
			ServiceName: name,
		})
	}
	return fields, nil
}

// dependencies 返回计划中必需的依赖契约
func (p *BuildPlan) dependencies() []Contract {
	if p.Constructor.IsValid() {
		return parameterContracts(p.Constructor.Type())
	}
	var deps []Contract
	for _, f := range p.Fields {
		if !f.Optional {
			deps = append(deps, Contract{Type: f.Type, Name: f.ServiceName})
		}
	}
	return deps
}

// pipeline 将计划编译为管道
func (p *BuildPlan) pipeline() Pipeline {
	if p.Constructor.IsValid() {
		return newInvoker(p.Constructor, p.Type).call
	}

	plan := p
	isPtr := p.Type.Kind() == reflect.Pointer
	st := p.Type
	if isPtr {
		st = st.Elem()
	}

	return func(ctx *BuilderContext) (any, error) {
		ptr := reflect.New(st)
		elem := ptr.Elem()
		for _, f := range plan.Fields {
			v, err := ctx.ResolveMember(Member{
				Kind:      MemberField,
				Declaring: plan.Type,
				Name:      f.Name,
				Contract:  Contract{Type: f.Type, Name: f.ServiceName},
				Optional:  f.Optional,
			})
			if err != nil {
				return nil, err
			}
			if v == nil && f.Optional {
				continue
			}
			rv, err := valueOf(v, f.Type)
			if err != nil {
				return nil, ctx.failf(err, "注入字段 %s", f.Name)
			}
			elem.FieldByIndex(f.Index).Set(rv)
		}
		if isPtr {
			return ptr.Interface(), nil
		}
		return elem.Interface(), nil
	}
}

// planCache 容器树共享的构建计划缓存
type planCache struct {
	planner BuildPlanner
	plans   sync.Map // reflect.Type -> *planEntry
}

type planEntry struct {
	plan     *BuildPlan
	pipeline Pipeline
	err      error
}

func (c *planCache) get(t reflect.Type) *planEntry {
	if v, ok := c.plans.Load(t); ok {
		return v.(*planEntry)
	}
	plan, err := c.planner.Plan(t)
	if err != nil {
		// 失败不缓存，规划器之后补充的构造函数可以生效
		return &planEntry{err: err}
	}
	entry := &planEntry{plan: plan, pipeline: plan.pipeline()}
	actual, _ := c.plans.LoadOrStore(t, entry)
	return actual.(*planEntry)
}
