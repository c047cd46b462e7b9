package cache

import (
	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/schema"
)

// KeyStrategy 缓存键生成策略接口
type KeyStrategy interface {
	// Key 由请求与 schema 生成确定性的指纹
	Key(req *llm.Request, s *schema.JSONSchema) string

	// Name 返回策略名称（用于日志和调试）
	Name() string
}

// NewKeyStrategy 按名称选择策略: hash | hierarchical, 未知名称回退到 hash
func NewKeyStrategy(name string) KeyStrategy {
	switch name {
	case "hierarchical":
		return NewHierarchicalKeyStrategy()
	default:
		return NewHashKeyStrategy()
	}
}

// Fingerprint 使用默认 hash 策略计算请求指纹
func Fingerprint(req *llm.Request, s *schema.JSONSchema) string {
	return defaultStrategy.Key(req, s)
}

var defaultStrategy = NewHashKeyStrategy()

// fingerprintInput 是参与指纹计算的全部字段.
// encoding/json 对 map 键排序, 因此 Extra 的插入顺序不影响结果.
type fingerprintInput struct {
	Prompt       string                `json:"prompt"`
	SystemPrompt string                `json:"system_prompt"`
	Options      llm.GenerationOptions `json:"options"`
	Schema       string                `json:"schema"`
}

func newFingerprintInput(req *llm.Request, s *schema.JSONSchema) fingerprintInput {
	in := fingerprintInput{Schema: s.Identity()}
	if req != nil {
		in.Prompt = req.Prompt
		in.SystemPrompt = req.SystemPrompt
		in.Options = req.Options
	}
	return in
}
