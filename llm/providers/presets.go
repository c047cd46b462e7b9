package providers

import (
	"sort"
	"strings"
)

// Preset 描述一个 OpenAI 兼容服务商的默认接入参数
type Preset struct {
	Name          string
	BaseURL       string
	EndpointPath  string
	FallbackModel string
}

var presets = map[string]Preset{
	"openai": {
		Name:          "openai",
		BaseURL:       "https://api.openai.com",
		EndpointPath:  "/v1/chat/completions",
		FallbackModel: "gpt-4o-mini",
	},
	"deepseek": {
		Name:          "deepseek",
		BaseURL:       "https://api.deepseek.com",
		EndpointPath:  "/chat/completions",
		FallbackModel: "deepseek-chat",
	},
	"qwen": {
		Name:          "qwen",
		BaseURL:       "https://dashscope.aliyuncs.com",
		EndpointPath:  "/compatible-mode/v1/chat/completions",
		FallbackModel: "qwen3-235b-a22b",
	},
	"glm": {
		Name:          "glm",
		BaseURL:       "https://open.bigmodel.cn",
		EndpointPath:  "/api/paas/v4/chat/completions",
		FallbackModel: "glm-4-flash",
	},
	"kimi": {
		Name:          "kimi",
		BaseURL:       "https://api.moonshot.cn",
		EndpointPath:  "/v1/chat/completions",
		FallbackModel: "moonshot-v1-8k",
	},
	"grok": {
		Name:          "grok",
		BaseURL:       "https://api.x.ai",
		EndpointPath:  "/v1/chat/completions",
		FallbackModel: "grok-beta",
	},
	"mistral": {
		Name:          "mistral",
		BaseURL:       "https://api.mistral.ai",
		EndpointPath:  "/v1/chat/completions",
		FallbackModel: "mistral-large-latest",
	},
	"doubao": {
		Name:          "doubao",
		BaseURL:       "https://ark.cn-beijing.volces.com",
		EndpointPath:  "/api/v3/chat/completions",
		FallbackModel: "Doubao-1.5-pro-32k",
	},
}

// LookupPreset 按名称（忽略大小写）查找服务商预设
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// PresetNames 返回已知预设名称（已排序）
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
