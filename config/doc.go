// Package config 提供 StructFlow 的配置加载功能。
//
// 配置按 默认值 → YAML 文件 → STRUCTFLOW_* 环境变量 的顺序叠加，
// 最后统一执行验证器。Config.Validate 会一次性汇总所有问题。
package config
