package di

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotRegistered 契约未注册且无法自动构造
	ErrNotRegistered = errors.New("di: 服务未注册")
	// ErrDisposed 容器已释放
	ErrDisposed = errors.New("di: 容器已释放")
	// ErrNoBuildPlan 类型无法生成构建计划
	ErrNoBuildPlan = errors.New("di: 无法为类型生成构建计划")
)

// ResolutionFailedError 表示解析失败（非用户代码错误）。
type ResolutionFailedError struct {
	Contract Contract
	Message  string
	// Path 从顶层请求到失败位置的契约链
	Path  []Contract
	Cause error
}

func (e *ResolutionFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "di: 解析 %v 失败", e.Contract)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Path) > 1 {
		b.WriteString(" (路径: ")
		b.WriteString(formatPath(e.Path))
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ResolutionFailedError) Unwrap() error {
	return e.Cause
}

// CircularDependencyError 检测到循环依赖
type CircularDependencyError struct {
	Path []Contract
}

func (e *CircularDependencyError) Error() string {
	return "di: 检测到循环依赖: " + formatPath(e.Path)
}

// RegistrationError 注册参数无效
type RegistrationError struct {
	Contract Contract
	Reason   string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("di: 注册 %v 失败: %s", e.Contract, e.Reason)
}

// PanicError 包装用户代码中恢复的 panic
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("di: 用户代码 panic: %v", e.Value)
}

// Unwrap 当 panic 值本身是 error 时返回它
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func formatPath(path []Contract) string {
	parts := make([]string, len(path))
	for i, c := range path {
		parts[i] = c.String()
	}
	return strings.Join(parts, " -> ")
}
