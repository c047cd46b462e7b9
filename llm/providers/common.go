package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/structflow/types"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 types.Error
func MapHTTPError(status int, msg string, provider string) *types.Error {
	e := &types.Error{
		Message:    msg,
		HTTPStatus: status,
		Provider:   provider,
	}

	switch status {
	case http.StatusUnauthorized:
		e.Code = types.ErrUnauthorized
	case http.StatusForbidden:
		e.Code = types.ErrForbidden
	case http.StatusTooManyRequests:
		e.Code = types.ErrRateLimited
		e.Retryable = true
	case http.StatusBadRequest:
		// 部分服务商用 400 表示额度耗尽
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			e.Code = types.ErrQuotaExceeded
		} else {
			e.Code = types.ErrInvalidRequest
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		e.Code = types.ErrUpstreamTimeout
		e.Retryable = true
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		e.Code = types.ErrUpstreamError
		e.Retryable = true
	case 529: // 模型过载（部分服务商使用）
		e.Code = types.ErrModelOverloaded
		e.Retryable = true
	default:
		e.Code = types.ErrUpstreamError
		e.Retryable = status >= 500
	}

	return e
}

// ReadErrorMessage 读取响应体中的错误消息
// 优先解析 OpenAI 风格的 JSON 错误，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	return strings.TrimSpace(string(data))
}

// =============================================================================
// OpenAI 兼容 API 通用类型
// =============================================================================

// ChatMessage OpenAI 兼容的消息格式
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat 约束输出格式，json_object 开启 JSON 模式
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest OpenAI 兼容的聊天补全请求
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

// ChatChoice 响应中的单个选项
type ChatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      ChatMessage `json:"message"`
}

// ChatUsage token 用量
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse OpenAI 兼容的聊天补全响应
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

// ErrorResponse OpenAI 兼容的错误响应
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ChooseModel 按 请求 > 默认 > 兜底 的顺序选择模型
func ChooseModel(requested, defaultModel, fallbackModel string) string {
	if requested != "" {
		return requested
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// BearerTokenHeaders 标准 Bearer token 认证 header
func BearerTokenHeaders(r *http.Request, apiKey string) {
	if apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+apiKey)
	}
	r.Header.Set("Content-Type", "application/json")
}

// SafeCloseBody 关闭响应体并忽略错误
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
