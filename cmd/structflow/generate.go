package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/structflow/config"
	rediscache "github.com/BaSui01/structflow/internal/cache"
	"github.com/BaSui01/structflow/internal/metrics"
	"github.com/BaSui01/structflow/internal/server"
	"github.com/BaSui01/structflow/internal/telemetry"
	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/llm/cache"
	"github.com/BaSui01/structflow/llm/providers/openaicompat"
	"github.com/BaSui01/structflow/schema"
	"github.com/BaSui01/structflow/structured"
)

// errPartialFailure 表示至少一条提示词没有得到合法结果，详情已写入日志
var errPartialFailure = errors.New("one or more prompts failed")

type generateFlags struct {
	configPath  string
	schemaPath  string
	prompt      string
	promptsPath string
	system      string
	model       string
	noCache     bool
	concurrency int
	maxAttempts int
}

func parseGenerateFlags(args []string) (generateFlags, error) {
	var f generateFlags
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.schemaPath, "schema", "", "Path to JSON Schema file")
	fs.StringVar(&f.prompt, "prompt", "", "Single prompt")
	fs.StringVar(&f.promptsPath, "prompts", "", "File with one prompt per line")
	fs.StringVar(&f.system, "system", "", "System prompt")
	fs.StringVar(&f.model, "model", "", "Override provider model")
	fs.BoolVar(&f.noCache, "no-cache", false, "Skip cache reads")
	fs.IntVar(&f.concurrency, "concurrency", 4, "Parallel calls")
	fs.IntVar(&f.maxAttempts, "max-attempts", 0, "Override client.max_attempts")
	if err := fs.Parse(args); err != nil {
		return f, err
	}

	switch {
	case f.schemaPath == "":
		return f, fmt.Errorf("--schema is required")
	case f.prompt == "" && f.promptsPath == "":
		return f, fmt.Errorf("one of --prompt or --prompts is required")
	case f.prompt != "" && f.promptsPath != "":
		return f, fmt.Errorf("--prompt and --prompts are mutually exclusive")
	case f.concurrency < 1:
		return f, fmt.Errorf("--concurrency must be >= 1")
	case f.maxAttempts < 0:
		return f, fmt.Errorf("--max-attempts must not be negative")
	}
	return f, nil
}

// =============================================================================
// 🚀 generate 命令
// =============================================================================

func runGenerate(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := parseGenerateFlags(args)
	if err != nil {
		return err
	}

	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if f.configPath != "" {
		loader = loader.WithConfigPath(f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.model != "" {
		cfg.Provider.Model = f.model
	}

	s, err := loadSchema(f.schemaPath)
	if err != nil {
		return err
	}
	prompts, err := collectPrompts(f)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Info("Starting StructFlow",
		zap.String("version", Version),
		zap.String("schema", s.Label()),
		zap.Int("prompts", len(prompts)),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger, metrics.WithRegisterer(reg))

	opts := append(structured.ConfigOptions(cfg),
		structured.WithLogger(logger),
		structured.WithMetrics(collector),
		structured.WithTracer(otelProviders.Tracer("")),
	)

	var redisMgr *rediscache.Manager
	if cfg.Cache.Enabled && cfg.Cache.L2Enabled {
		redisMgr, err = rediscache.NewManager(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without shared cache", zap.Error(err))
		} else {
			defer func() { _ = redisMgr.Close() }()
			store := cache.NewRedisStore(redisMgr.Client(), cache.RedisStoreConfig{
				Prefix: cfg.Cache.L2Prefix,
				TTL:    cfg.Cache.L2TTL,
			}, logger)
			opts = append(opts, structured.WithStore(store))
		}
	}

	if cfg.Metrics.Enabled {
		listener := server.NewManager(server.NewHandler(reg, healthCheck(redisMgr)), server.FromMetricsConfig(cfg.Metrics), logger)
		if err := listener.Start(); err != nil {
			logger.Warn("metrics listener not started", zap.Error(err))
		} else {
			defer func() { _ = listener.Shutdown(context.Background()) }()
		}
	}

	provider := openaicompat.New(openaicompat.FromConfig(cfg.Provider), logger, openaicompat.WithRecorder(collector))
	client, err := structured.New(provider, opts...)
	if err != nil {
		return err
	}

	var callOpts []structured.CallOption
	if f.noCache {
		callOpts = append(callOpts, structured.UseCache(false))
	}
	if f.maxAttempts > 0 {
		callOpts = append(callOpts, structured.WithMaxAttempts(f.maxAttempts))
	}

	results := runBatch(ctx, client, prompts, f.system, s, f.concurrency, callOpts)
	return writeResults(stdout, results, logger)
}

// =============================================================================
// 🔁 批处理
// =============================================================================

type batchResult struct {
	Index  int
	Result *schema.Result
	Err    error
}

// runBatch 并发执行全部提示词，结果按输入顺序返回。单条失败不影响其他条目。
func runBatch(ctx context.Context, client *structured.Client, prompts []string, system string, s *schema.JSONSchema, limit int, opts []structured.CallOption) []batchResult {
	results := make([]batchResult, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, p := range prompts {
		g.Go(func() error {
			req := llm.NewRequest(p)
			if system != "" {
				req = req.WithSystemPrompt(system)
			}
			res, err := client.Generate(gctx, req, s, opts...)
			results[i] = batchResult{Index: i, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func writeResults(w io.Writer, results []batchResult, logger *zap.Logger) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("prompt failed", zap.Int("index", r.Index), zap.Error(r.Err))
			continue
		}
		if _, err := fmt.Fprintln(w, r.Result.String()); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if failed > 0 {
		logger.Warn("batch finished with failures", zap.Int("failed", failed), zap.Int("total", len(results)))
		return errPartialFailure
	}
	return nil
}

func healthCheck(mgr *rediscache.Manager) server.HealthFunc {
	if mgr == nil {
		return nil
	}
	return mgr.Ping
}

// =============================================================================
// 📂 输入
// =============================================================================

func loadSchema(path string) (*schema.JSONSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s, err := schema.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if err := s.Check(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

func collectPrompts(f generateFlags) ([]string, error) {
	if f.prompt != "" {
		return []string{f.prompt}, nil
	}
	file, err := os.Open(f.promptsPath)
	if err != nil {
		return nil, fmt.Errorf("open prompts: %w", err)
	}
	defer file.Close()

	prompts, err := readPrompts(file)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%s contains no prompts", f.promptsPath)
	}
	return prompts, nil
}

// readPrompts 每行一条提示词，跳过空行与 # 注释。
// 以 JSON 字符串书写的行会被解码，以便包含换行。
func readPrompts(r io.Reader) ([]string, error) {
	var prompts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, `"`) {
			var decoded string
			if err := json.Unmarshal([]byte(line), &decoded); err != nil {
				return nil, fmt.Errorf("line %q: %w", line, err)
			}
			line = decoded
		}
		prompts = append(prompts, line)
	}
	return prompts, sc.Err()
}
