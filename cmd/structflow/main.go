// =============================================================================
// StructFlow 命令行入口
// =============================================================================
// 批量结构化生成：读取 schema 与提示词，逐条输出通过校验的 JSON
//
// 使用方法:
//
//	structflow generate --schema sentiment.json --prompt "Analyze: great product"
//	structflow generate --config structflow.yaml --schema s.json --prompts prompts.txt
//	structflow version
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/structflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err := runGenerate(ctx, os.Args[2:], os.Stdout)
		stop()
		if err != nil {
			if !errors.Is(err, errPartialFailure) {
				fmt.Fprintf(os.Stderr, "generate: %v\n", err)
			}
			os.Exit(1)
		}
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("StructFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`StructFlow - resilient structured output for LLMs

Usage:
  structflow <command> [options]

Commands:
  generate  Generate validated JSON for one or more prompts
  version   Show version information
  help      Show this help message

Options for 'generate':
  --config <path>       Path to configuration file (YAML)
  --schema <path>       JSON Schema file the output must satisfy (required)
  --prompt <text>       Single prompt
  --prompts <path>      File with one prompt per line ('#' comments allowed)
  --system <text>       System prompt
  --model <name>        Override provider.model
  --no-cache            Skip cache reads (results are still stored)
  --concurrency <n>     Parallel calls (default 4)
  --max-attempts <n>    Override client.max_attempts

Examples:
  structflow generate --schema sentiment.json --prompt "Analyze: I loved it"
  STRUCTFLOW_PROVIDER_API_KEY=sk-... structflow generate --config structflow.yaml --schema s.json --prompts in.txt
  structflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
