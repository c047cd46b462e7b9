package cache

import (
	"fmt"
	"strings"

	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/schema"
)

// HierarchicalKeyStrategy 层次化缓存键策略
// 格式：fp:{schemaHash}:{model}:{requestHash}
// 同一 schema 的结果共享前缀, 便于在 Redis 中按 schema 扫描或失效
type HierarchicalKeyStrategy struct{}

// Name 返回策略名称
func (s *HierarchicalKeyStrategy) Name() string {
	return "hierarchical"
}

// Key 生成层次化缓存键
func (s *HierarchicalKeyStrategy) Key(req *llm.Request, sc *schema.JSONSchema) string {
	model := "default"
	if req != nil && req.Options.Model != "" {
		model = sanitizeSegment(req.Options.Model)
	}
	schemaHash := strings.TrimPrefix(sc.Identity(), "schema:")
	if len(schemaHash) > 12 {
		schemaHash = schemaHash[:12]
	}
	return fmt.Sprintf("fp:%s:%s:%s", schemaHash, model, digest(newFingerprintInput(req, sc), 16))
}

// SchemaPrefix 返回某 schema 下全部键的公共前缀
func (s *HierarchicalKeyStrategy) SchemaPrefix(sc *schema.JSONSchema) string {
	schemaHash := strings.TrimPrefix(sc.Identity(), "schema:")
	if len(schemaHash) > 12 {
		schemaHash = schemaHash[:12]
	}
	return "fp:" + schemaHash + ":"
}

// sanitizeSegment 去掉会破坏键层级的分隔符
func sanitizeSegment(v string) string {
	return strings.NewReplacer(":", "_", " ", "_", "*", "_").Replace(v)
}

// NewHierarchicalKeyStrategy 创建层次化策略
func NewHierarchicalKeyStrategy() *HierarchicalKeyStrategy {
	return &HierarchicalKeyStrategy{}
}
