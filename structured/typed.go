package structured

import (
	"context"
	"reflect"
	"sync"

	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/schema"
	"github.com/BaSui01/structflow/types"
)

// 按类型缓存推导出的 schema，避免每次调用都反射
var typeSchemas sync.Map // reflect.Type -> *schema.JSONSchema

// SchemaOf 返回 T 对应的 schema，结果按类型缓存
func SchemaOf[T any]() (*schema.JSONSchema, error) {
	t := reflect.TypeFor[T]()
	if cached, ok := typeSchemas.Load(t); ok {
		return cached.(*schema.JSONSchema), nil
	}
	s, err := schema.For[T]()
	if err != nil {
		return nil, err
	}
	actual, _ := typeSchemas.LoadOrStore(t, s)
	return actual.(*schema.JSONSchema), nil
}

// GenerateInto 从 T 的 struct 标签推导 schema，生成并解码为 T
func GenerateInto[T any](ctx context.Context, c *Client, req *llm.Request, opts ...CallOption) (T, error) {
	var zero T
	s, err := SchemaOf[T]()
	if err != nil {
		return zero, newClientError("", types.NewError(types.ErrInvalidRequest, "cannot derive schema").WithCause(err))
	}
	return GenerateAs[T](ctx, c, req, s, opts...)
}

// GenerateAs 使用显式 schema 生成并解码为 T
func GenerateAs[T any](ctx context.Context, c *Client, req *llm.Request, s *schema.JSONSchema, opts ...CallOption) (T, error) {
	var zero T
	res, err := c.Generate(ctx, req, s, opts...)
	if err != nil {
		return zero, err
	}
	out, err := schema.As[T](res)
	if err != nil {
		return zero, newClientError(c.Fingerprint(req, s), types.NewError(types.ErrValidation, "result does not decode into target type").WithCause(err))
	}
	return out, nil
}
