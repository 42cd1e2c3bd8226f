// Package config 提供 svdflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 环境变量使用 SVDFLOW_<SECTION>_<FIELD> 命名。
package config
