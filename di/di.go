package di

import (
	"fmt"
	"reflect"
)

// Register 注册类型 T。
// 如果 T 是接口，需要使用 di.Use[Impl]() 指定实现类型。
func Register[T any](c *Container, opts ...Option) error {
	o := applyOptions(opts)
	return c.Register(Contract{Type: TypeOf[T](), Name: o.name}, &Registration{
		Category: CategoryType,
		Lifetime: o.lifetime,
		MappedTo: o.implType,
	})
}

// RegisterType 将 From 映射到实现类型 To
func RegisterType[From, To any](c *Container, opts ...Option) error {
	return Register[From](c, append(opts, Use[To]())...)
}

// RegisterInstance 注册已创建的实例。
// 默认容器不负责释放该实例，使用 WithOwnership 时作为单例由容器释放。
func RegisterInstance[T any](c *Container, value T, opts ...Option) error {
	o := applyOptions(opts)
	lifetime := o.lifetime
	if lifetime == nil {
		if o.owned {
			lifetime = Singleton()
		} else {
			lifetime = External()
		}
	}
	return c.Register(Contract{Type: TypeOf[T](), Name: o.name}, &Registration{
		Category: CategoryInstance,
		Lifetime: lifetime,
		Data:     value,
	})
}

// RegisterFactory 注册工厂函数，函数参数由容器注入。
// 函数签名为 func(deps...) T 或 func(deps...) (T, error)。
// *di.BuilderContext 参数传入当前帧；*di.Container 参数传入绑定当前帧的容器句柄，
// 在工厂内通过它解析出的循环依赖会返回 *CircularDependencyError 而不是阻塞。
func RegisterFactory[T any](c *Container, factory any, opts ...Option) error {
	o := applyOptions(opts)
	return c.Register(Contract{Type: TypeOf[T](), Name: o.name}, &Registration{
		Category: CategoryFactory,
		Lifetime: o.lifetime,
		Data:     factory,
	})
}

// RegisterGeneric 为开放泛型定义注册工厂，所有实例化类型共用该工厂。
//
//	di.RegisterGeneric(c, di.Generic[Repository[any]](), func(ctx *di.BuilderContext, closed reflect.Type) (any, error) {
//		return newRepository(closed), nil
//	}, di.WithSingleton())
func RegisterGeneric(c *Container, def GenericDefinition, factory GenericFactory, opts ...Option) error {
	o := applyOptions(opts)
	return c.Register(def.Contract(o.name), &Registration{
		Category: CategoryFactory,
		Lifetime: o.lifetime,
		Data:     factory,
	})
}

// Resolve 从容器解析类型 T 的默认注册。
func Resolve[T any](c *Container, overrides ...ResolverOverride) (T, error) {
	return ResolveNamed[T](c, "", overrides...)
}

// ResolveNamed 从容器解析类型 T 的命名注册。
func ResolveNamed[T any](c *Container, name string, overrides ...ResolverOverride) (T, error) {
	var zero T
	typ := TypeOf[T]()

	val, err := c.Resolve(typ, name, overrides...)
	if err != nil {
		return zero, err
	}
	if val == nil {
		return zero, nil
	}

	result, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("di: 解析结果类型 %T 不能转换为 %v", val, typ)
	}
	return result, nil
}

// MustResolve 解析失败时 panic
func MustResolve[T any](c *Container, overrides ...ResolverOverride) T {
	v, err := Resolve[T](c, overrides...)
	if err != nil {
		panic(fmt.Sprintf("di: 解析 %v 失败: %v", TypeOf[T](), err))
	}
	return v
}

// IsRegistered 判断类型 T 是否已注册，可选名称
func IsRegistered[T any](c *Container, name ...string) bool {
	n := ""
	if len(name) > 0 {
		n = name[0]
	}
	return c.IsRegistered(TypeOf[T](), n)
}

// Inject 为已有的结构体指针注入带 di 标签的字段
func Inject(c *Container, target any, overrides ...ResolverOverride) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("di: Inject 需要非 nil 的结构体指针，得到 %T", target)
	}

	fields, err := analyzeStruct(v.Elem().Type())
	if err != nil {
		return err
	}

	values := make([]any, len(fields))
	_, err = c.run(Contract{Type: v.Type()}, overrides, func(ctx *BuilderContext) (any, error) {
		for i, f := range fields {
			val, err := ctx.ResolveMember(Member{
				Kind:      MemberField,
				Declaring: v.Type(),
				Name:      f.Name,
				Contract:  Contract{Type: f.Type, Name: f.ServiceName},
				Optional:  f.Optional,
			})
			if err != nil {
				return nil, err
			}
			values[i] = val
		}
		return target, nil
	})
	if err != nil {
		return err
	}

	elem := v.Elem()
	for i, f := range fields {
		if values[i] == nil && f.Optional {
			continue
		}
		rv, err := valueOf(values[i], f.Type)
		if err != nil {
			return err
		}
		elem.FieldByIndex(f.Index).Set(rv)
	}
	return nil
}

// Invoke 从容器解析函数的全部参数后调用它。
// 函数的最后一个返回值为 error 时，非 nil 的错误原样返回，其余返回值被忽略。
func Invoke(c *Container, fn any, overrides ...ResolverOverride) error {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("di: Invoke 需要函数，得到 %T", fn)
	}
	t := v.Type()
	iv := newInvoker(v, t)

	var args []reflect.Value
	_, err := c.run(Contract{Type: t}, overrides, func(ctx *BuilderContext) (any, error) {
		var err error
		args, err = iv.arguments(ctx)
		return nil, err
	})
	if err != nil {
		return err
	}

	results := iv.invoke(args)
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		if e := results[n-1]; !e.IsNil() {
			return e.Interface().(error)
		}
	}
	return nil
}
