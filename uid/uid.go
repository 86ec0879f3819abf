package uid

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/ref"
)

func init() {
	ref.MustRegisterT[SnowflakeGenerator](NewSnowflakeGeneratorWithOptions)
	ref.MustRegisterT[RedisGenerator](NewRedisGeneratorWithOptions)
	ref.MustRegisterT[UUIDGenerator](NewUUIDGeneratorWithOptions)
}

// IntGenerator 整数主键生成器
type IntGenerator interface {
	Generate(ctx context.Context) (int64, error)
}

// StrGenerator 字符串主键生成器
type StrGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// NewIntGeneratorWithOptions 按 TypeOptions 创建整数生成器，options 为 nil 时使用 snowflake
func NewIntGeneratorWithOptions(options *ref.TypeOptions) (IntGenerator, error) {
	if options == nil || options.Type == "" {
		return NewSnowflakeGeneratorWithOptions(nil)
	}
	g, err := ref.NewT[IntGenerator](withNamespace(options))
	if err != nil {
		return nil, errors.WithMessage(err, "create int generator failed")
	}
	return g, nil
}

// NewStrGeneratorWithOptions 按 TypeOptions 创建字符串生成器，options 为 nil 时使用 uuid
func NewStrGeneratorWithOptions(options *ref.TypeOptions) (StrGenerator, error) {
	if options == nil || options.Type == "" {
		return NewUUIDGeneratorWithOptions(nil)
	}
	g, err := ref.NewT[StrGenerator](withNamespace(options))
	if err != nil {
		return nil, errors.WithMessage(err, "create str generator failed")
	}
	return g, nil
}

func withNamespace(options *ref.TypeOptions) *ref.TypeOptions {
	if options.Namespace != "" {
		return options
	}
	o := *options
	o.Namespace = "github.com/hatlonely/rdbx/uid"
	return &o
}
