package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/schema"
)

// HashKeyStrategy Hash 缓存键策略
// 对提示词、系统提示词、生成参数与 schema 标识整体做 sha256
type HashKeyStrategy struct{}

// Name 返回策略名称
func (s *HashKeyStrategy) Name() string {
	return "hash"
}

// Key 生成 Hash 缓存键
func (s *HashKeyStrategy) Key(req *llm.Request, sc *schema.JSONSchema) string {
	return "fp:" + digest(newFingerprintInput(req, sc), 16)
}

// NewHashKeyStrategy 创建 Hash 策略
func NewHashKeyStrategy() *HashKeyStrategy {
	return &HashKeyStrategy{}
}

func digest(in fingerprintInput, n int) string {
	data, err := json.Marshal(in)
	if err != nil {
		// 选项无法编码时只保留确定的字段; Request.Validate 会先拒绝这类请求
		in.Options = llm.GenerationOptions{Model: in.Options.Model, MaxTokens: in.Options.MaxTokens}
		in.Prompt += "\x00unencodable-options"
		data, _ = json.Marshal(in)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:n])
}
