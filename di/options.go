package di

import (
	"reflect"

	"github.com/gocrud/ioc/logging"
)

// Options 容器选项
type Options struct {
	Name string
	// Diagnostics 开启后记录每一帧的构造过程，失败时附带解析路径
	Diagnostics     bool
	Logger          logging.Logger
	Planner         BuildPlanner
	DefaultLifetime LifetimeKind
	// Constructors 注册到默认构建计划器的构造函数，设置 Planner 时忽略
	Constructors []any
}

// ContainerOption 配置容器。
type ContainerOption func(*Options)

// WithContainerName 设置根容器名称
func WithContainerName(name string) ContainerOption {
	return func(o *Options) {
		o.Name = name
	}
}

// WithDiagnostics 开启诊断模式
func WithDiagnostics(enabled bool) ContainerOption {
	return func(o *Options) {
		o.Diagnostics = enabled
	}
}

// WithLogger 设置容器日志
func WithLogger(logger logging.Logger) ContainerOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithPlanner 替换默认构建计划器
func WithPlanner(planner BuildPlanner) ContainerOption {
	return func(o *Options) {
		o.Planner = planner
	}
}

// WithDefaultLifetime 设置未指定生命周期的注册使用的默认值（默认 Transient）
func WithDefaultLifetime(kind LifetimeKind) ContainerOption {
	return func(o *Options) {
		o.DefaultLifetime = kind
	}
}

// WithConstructor 为未注册类型指定构造函数
func WithConstructor(fn any) ContainerOption {
	return func(o *Options) {
		o.Constructors = append(o.Constructors, fn)
	}
}

// registrationOptions 注册选项
type registrationOptions struct {
	name     string
	lifetime LifetimeManager
	implType reflect.Type
	owned    bool
}

// Option 配置服务注册。
type Option func(*registrationOptions)

// WithName 设置服务的名称，用于命名注入。
func WithName(name string) Option {
	return func(o *registrationOptions) {
		o.name = name
	}
}

// WithLifetime 设置生命周期管理器。
func WithLifetime(lm LifetimeManager) Option {
	return func(o *registrationOptions) {
		o.lifetime = lm
	}
}

// WithTransient 每次请求创建新实例。
func WithTransient() Option {
	return WithLifetime(Transient())
}

// WithSingleton 容器内单例。
func WithSingleton() Option {
	return WithLifetime(Singleton())
}

// WithHierarchical 每个子容器一个实例。
func WithHierarchical() Option {
	return WithLifetime(Hierarchical())
}

// WithPerResolve 一次解析调用内共享实例。
func WithPerResolve() Option {
	return WithLifetime(PerResolve())
}

// WithExternal 缓存实例但容器不负责释放。
func WithExternal() Option {
	return WithLifetime(External())
}

// WithOwnership 由容器负责释放注册的实例。
func WithOwnership() Option {
	return func(o *registrationOptions) {
		o.owned = true
	}
}

// Use 指定接口的实现类型。
func Use[T any]() Option {
	return func(o *registrationOptions) {
		o.implType = TypeOf[T]()
	}
}

func applyOptions(opts []Option) *registrationOptions {
	o := &registrationOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
