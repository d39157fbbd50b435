// Package config 提供配置加载功能.
//
// 基于 viper，支持 yaml/json/toml 文件、字节数组与环境变量覆盖.
// 目标结构体实现 Defaulter 时先补齐默认值，实现 Validatable 时再做校验.
package config

// Validatable 可验证的配置接口.
type Validatable interface {
	Validate() error
}

// Defaulter 可填充默认值的配置接口.
type Defaulter interface {
	ApplyDefaults()
}
