package di

import (
	"fmt"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

// OptionsFromConfig 从配置节读取容器选项。
//
// 支持的键：
//
//	name             根容器名称
//	diagnostics      是否开启诊断模式
//	log_level        容器日志级别，设置后容器日志输出到控制台
//	default_lifetime 默认生命周期（transient / singleton / hierarchical / per_resolve / external）
//
// 配置节不存在时返回空选项。
func OptionsFromConfig(cfg config.Configuration, section string) ([]ContainerOption, error) {
	if section != "" && !cfg.Has(section) {
		return nil, nil
	}
	s := cfg
	if section != "" {
		s = cfg.GetSection(section)
	}

	var opts []ContainerOption
	if s.Has("name") {
		opts = append(opts, WithContainerName(s.Get("name")))
	}
	if s.Has("diagnostics") {
		enabled, err := s.GetBool("diagnostics")
		if err != nil {
			return nil, fmt.Errorf("di: 配置 diagnostics 无效: %w", err)
		}
		opts = append(opts, WithDiagnostics(enabled))
	}
	if s.Has("log_level") {
		level, err := logging.ParseLevel(s.Get("log_level"))
		if err != nil {
			return nil, fmt.Errorf("di: 配置 log_level 无效: %w", err)
		}
		opts = append(opts, WithLogger(logging.NewLogger("di", level)))
	}
	if s.Has("default_lifetime") {
		kind, err := ParseLifetime(s.Get("default_lifetime"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDefaultLifetime(kind))
	}
	return opts, nil
}
