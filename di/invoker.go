package di

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	containerType = reflect.TypeOf((*Container)(nil))
	contextType   = reflect.TypeOf((*BuilderContext)(nil))
)

// invoker 调用工厂或构造函数
// 封装了反射调用的细节，参数在调用时逐个解析
type invoker struct {
	fn        reflect.Value
	declaring reflect.Type
	params    []reflect.Type
	hasError  bool
}

func newInvoker(fn reflect.Value, declaring reflect.Type) *invoker {
	t := fn.Type()
	params := make([]reflect.Type, t.NumIn())
	for i := range params {
		params[i] = t.In(i)
	}
	return &invoker{
		fn:        fn,
		declaring: declaring,
		params:    params,
		hasError:  t.NumOut() == 2,
	}
}

// checkFactory 检查函数签名: func(...) T 或 func(...) (T, error)
func checkFactory(v reflect.Value) error {
	if !v.IsValid() || v.Kind() != reflect.Func {
		return errors.New("di: 期望函数")
	}
	if v.IsNil() {
		return errors.New("di: 函数为 nil")
	}
	t := v.Type()
	switch t.NumOut() {
	case 1:
		return nil
	case 2:
		if t.Out(1) == errorType {
			return nil
		}
	}
	return fmt.Errorf("di: 函数 %v 必须返回 T 或 (T, error)", t)
}

// parameterContracts 返回函数参数对应的依赖契约，容器和上下文参数除外
func parameterContracts(t reflect.Type) []Contract {
	var deps []Contract
	for i := 0; i < t.NumIn(); i++ {
		in := t.In(i)
		if in == containerType || in == contextType {
			continue
		}
		deps = append(deps, Contract{Type: in})
	}
	return deps
}

// arguments 逐个解析函数参数
func (iv *invoker) arguments(ctx *BuilderContext) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(iv.params))
	for i, in := range iv.params {
		switch in {
		case containerType:
			args[i] = reflect.ValueOf(ctx.Container.bind(ctx))
			continue
		case contextType:
			args[i] = reflect.ValueOf(ctx)
			continue
		}

		v, err := ctx.ResolveMember(Member{
			Kind:      MemberParameter,
			Declaring: iv.declaring,
			Position:  i,
			Contract:  Contract{Type: in},
		})
		if err != nil {
			return nil, err
		}
		rv, err := valueOf(v, in)
		if err != nil {
			return nil, ctx.failf(err, "参数 %d", i)
		}
		args[i] = rv
	}
	return args, nil
}

// invoke 调用函数，返回后注入的容器句柄不再绑定帧
func (iv *invoker) invoke(args []reflect.Value) []reflect.Value {
	defer func() {
		for i, in := range iv.params {
			if in == containerType {
				args[i].Interface().(*Container).unbind()
			}
		}
	}()
	if iv.fn.Type().IsVariadic() {
		return iv.fn.CallSlice(args)
	}
	return iv.fn.Call(args)
}

func (iv *invoker) call(ctx *BuilderContext) (any, error) {
	args, err := iv.arguments(ctx)
	if err != nil {
		return nil, err
	}
	results := iv.invoke(args)

	// 检查 error
	if iv.hasError {
		if errVal := results[1]; !errVal.IsNil() {
			return nil, ctx.failUser(errVal.Interface().(error))
		}
	}

	out := results[0]
	if (out.Kind() == reflect.Interface || out.Kind() == reflect.Pointer) && out.IsNil() {
		return nil, nil
	}
	return out.Interface(), nil
}
