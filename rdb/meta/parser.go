package meta

import (
	"context"

	"github.com/pkg/errors"
)

// TableMetaParser 表元数据解析器
// Parse 逐张构建、校验并注册到 registry，返回本次注册的表
type TableMetaParser interface {
	Parse(ctx context.Context, registry *Registry) ([]*TableMeta, error)
}

// ParseAll 依次执行解析器，全部成功后冻结注册表
func ParseAll(ctx context.Context, registry *Registry, parsers ...TableMetaParser) ([]*TableMeta, error) {
	var tables []*TableMeta
	for _, parser := range parsers {
		parsed, err := parser.Parse(ctx, registry)
		if err != nil {
			return nil, errors.WithMessage(err, "parse table declarations failed")
		}
		tables = append(tables, parsed...)
	}
	registry.Freeze()
	return tables, nil
}

// register 校验并注册，两种解析器共用
func register(validator *Validator, registry *Registry, t *TableMeta) error {
	if err := validator.Validate(t); err != nil {
		return err
	}
	return registry.Register(t)
}
