package di

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Category 注册的种类，决定管道如何构建
type Category int

const (
	// CategoryType 类型映射，通过构建计划构造 MappedTo
	CategoryType Category = iota
	// CategoryFactory 调用工厂函数
	CategoryFactory
	// CategoryInstance 预先创建的实例
	CategoryInstance
	// CategoryCache 容器内部缓存（集合解析元数据），不参与 IsRegistered
	CategoryCache
	// CategoryInternal 容器内部注册，Data 为 Pipeline
	CategoryInternal
)

func (c Category) String() string {
	switch c {
	case CategoryType:
		return "type"
	case CategoryFactory:
		return "factory"
	case CategoryInstance:
		return "instance"
	case CategoryCache:
		return "cache"
	case CategoryInternal:
		return "internal"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Pipeline 构造一个值。失败时错误已经记录在 ctx 的错误槽中。
type Pipeline func(ctx *BuilderContext) (any, error)

// Registration 一条注册及其生命周期和构造管道。
type Registration struct {
	Category Category
	Lifetime LifetimeManager
	// MappedTo 类型映射的目标类型，仅 CategoryType 使用，为 nil 时构造契约类型本身
	MappedTo reflect.Type
	// Data 工厂函数、实例、Pipeline 或 GenericFactory
	Data any

	contract Contract
	owner    *Container
	origin   origin
	// source 派生注册来自的注册，来源被替换后派生注册失效
	source *Registration

	mu       sync.Mutex
	pipeline atomic.Pointer[Pipeline]
	disposer atomic.Pointer[disposer]
}

// Contract 返回注册所在的契约
func (r *Registration) Contract() Contract {
	return r.contract
}

// Owner 返回注册所在的容器
func (r *Registration) Owner() *Container {
	return r.owner
}

// GetValue 返回缓存值，false 表示没有缓存值
func (r *Registration) GetValue(ctx *BuilderContext) (any, bool) {
	return r.Lifetime.GetValue(ctx)
}

// SetValue 写入缓存值
func (r *Registration) SetValue(ctx *BuilderContext, value any) {
	r.Lifetime.SetValue(ctx, value)
}

// GetPipeline 返回已构建的管道，尚未构建时返回 nil
func (r *Registration) GetPipeline() Pipeline {
	if p := r.pipeline.Load(); p != nil {
		return *p
	}
	return nil
}

// SetPipeline 设置管道，先写入者生效，返回最终生效的管道
func (r *Registration) SetPipeline(p Pipeline) Pipeline {
	if r.pipeline.CompareAndSwap(nil, &p) {
		return p
	}
	return *r.pipeline.Load()
}

// ensurePipeline 双重检查构建管道，每条注册最多成功构建一次
func (r *Registration) ensurePipeline(build func(*Registration) (Pipeline, error)) (Pipeline, error) {
	if p := r.GetPipeline(); p != nil {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.GetPipeline(); p != nil {
		return p, nil
	}
	p, err := build(r)
	if err != nil {
		return nil, err
	}
	return r.SetPipeline(p), nil
}

// clone 复制注册，生命周期管理器不携带缓存值，已构建的管道共享
func (r *Registration) clone() *Registration {
	c := &Registration{
		Category: r.Category,
		Lifetime: r.Lifetime.Clone(),
		MappedTo: r.MappedTo,
		Data:     r.Data,
	}
	if p := r.pipeline.Load(); p != nil {
		c.pipeline.Store(p)
	}
	return c
}

// release 释放被替换注册所持有的值
func (r *Registration) release() error {
	if d := r.disposer.Load(); d != nil {
		return d.dispose()
	}
	return nil
}

// visible 判断注册是否对外可见
func (r *Registration) visible() bool {
	return r.Category != CategoryCache && r.Category != CategoryInternal
}

// origin 注册的来源，派生注册不影响集合解析的成员和顺序
type origin int

const (
	originUser origin = iota
	originAdopted
	originSpecialized
)

// RegistrationInfo 注册快照
type RegistrationInfo struct {
	Contract Contract
	Category Category
	Lifetime LifetimeKind
	MappedTo reflect.Type
	// Level 注册所在容器距当前容器的层级，0 为当前容器
	Level int
}
