package di

import (
	"fmt"
	"hash/maphash"
	"reflect"
	"strings"
)

// Contract 标识一次依赖请求：类型加可选名称。
//
// 两个 Contract 相等当且仅当类型相同且名称相同。空名称表示默认注册，
// 与任何非空名称都不相等。
type Contract struct {
	Type reflect.Type
	Name string

	// generic 非空时表示开放泛型定义，此时 Type 为 nil
	generic string
}

var contractSeed = maphash.MakeSeed()

// NewContract 创建契约
func NewContract(t reflect.Type, name string) Contract {
	return Contract{Type: t, Name: name}
}

// ContractOf 返回类型 T 的契约，可选名称
func ContractOf[T any](name ...string) Contract {
	c := Contract{Type: TypeOf[T]()}
	if len(name) > 0 {
		c.Name = name[0]
	}
	return c
}

// TypeOf 获取类型 T 的 reflect.Type
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// IsGeneric 判断是否为开放泛型契约
func (c Contract) IsGeneric() bool {
	return c.generic != ""
}

// Hash 返回契约的哈希值，相等的契约哈希相同
func (c Contract) Hash() uint64 {
	return maphash.Comparable(contractSeed, c)
}

// With 返回同名但类型不同的契约
func (c Contract) With(t reflect.Type) Contract {
	return Contract{Type: t, Name: c.Name}
}

// definition 对封闭泛型类型返回其开放定义契约
func (c Contract) definition() (Contract, bool) {
	if c.Type == nil || c.generic != "" {
		return Contract{}, false
	}
	def, ok := GenericOf(c.Type)
	if !ok {
		return Contract{}, false
	}
	return def.Contract(c.Name), true
}

func (c Contract) String() string {
	var typ string
	switch {
	case c.generic != "":
		typ = c.generic + "[...]"
	case c.Type != nil:
		typ = c.Type.String()
	default:
		typ = "<nil>"
	}
	if c.Name == "" {
		return typ
	}
	return fmt.Sprintf("%s(name=%s)", typ, c.Name)
}

// GenericDefinition 描述开放泛型定义，例如 Repository[T] 中的 Repository。
// 同一定义的所有实例化类型共享同一个 GenericDefinition。
type GenericDefinition struct {
	key string
}

// Generic 返回 T 的泛型定义，T 可以是该定义的任意实例化类型，例如 Generic[Repo[any]]()。
// T 不是泛型类型时 panic。
func Generic[T any]() GenericDefinition {
	t := TypeOf[T]()
	def, ok := GenericOf(t)
	if !ok {
		panic(fmt.Sprintf("di: %v 不是泛型类型", t))
	}
	return def
}

// GenericOf 返回类型 t 的泛型定义。
// 泛型定义由包路径和类型名 '[' 之前的部分组成，指针层级会计入定义。
func GenericOf(t reflect.Type) (GenericDefinition, bool) {
	if t == nil {
		return GenericDefinition{}, false
	}

	prefix := ""
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		prefix += "*"
		t = t.Elem()
	}

	name := t.Name()
	i := strings.IndexByte(name, '[')
	if i <= 0 {
		return GenericDefinition{}, false
	}
	return GenericDefinition{key: prefix + t.PkgPath() + "." + name[:i]}, true
}

// Contract 返回该泛型定义的契约
func (g GenericDefinition) Contract(name string) Contract {
	return Contract{Name: name, generic: g.key}
}

func (g GenericDefinition) String() string {
	return g.key
}
