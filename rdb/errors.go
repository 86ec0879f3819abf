package rdb

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError 表声明或全局配置错误（重复表名/别名、保留字段名、索引非法、缺少类型映射等）
// Source 为出错声明的来源（结构体类型名或文档路径）
type ConfigurationError struct {
	Source  string
	Table   string
	Message string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Source != "" && e.Table != "":
		return fmt.Sprintf("configuration error in %s (table %s): %s", e.Source, e.Table, e.Message)
	case e.Source != "":
		return fmt.Sprintf("configuration error in %s: %s", e.Source, e.Message)
	case e.Table != "":
		return fmt.Sprintf("configuration error (table %s): %s", e.Table, e.Message)
	}
	return "configuration error: " + e.Message
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(source, table, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Source: source, Table: table, Message: fmt.Sprintf(format, args...)}
}

// UnknownDatabaseError 没有方言族能识别当前连接的数据库产品
type UnknownDatabaseError struct {
	Product string
	Version string
}

func (e *UnknownDatabaseError) Error() string {
	return fmt.Sprintf("unknown database product %q (version %q)", e.Product, e.Version)
}

// UnsupportedFeatureError 方言不支持请求的能力，例如序列
type UnsupportedFeatureError struct {
	Dialect string
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("dialect %s does not support %s", e.Dialect, e.Feature)
}

// SchemaReconciliationError DDL 执行失败，带表名和失败的语句
type SchemaReconciliationError struct {
	Table     string
	Statement string
	Err       error
}

func (e *SchemaReconciliationError) Error() string {
	return fmt.Sprintf("reconcile table %s failed on [%s]: %v", e.Table, e.Statement, e.Err)
}

func (e *SchemaReconciliationError) Unwrap() error {
	return e.Err
}

// UnknownRelationError 查询引用了无法解析的表或视图
// Declared 为 true 时表示该表已声明但数据库中不存在（尚未同步）
type UnknownRelationError struct {
	Name     string
	Declared bool
}

func (e *UnknownRelationError) Error() string {
	if e.Declared {
		return fmt.Sprintf("table %s is declared but does not exist in database", e.Name)
	}
	return fmt.Sprintf("unknown table or view %s", e.Name)
}

// TypeMappingError 方言没有该逻辑类型的列类型映射
type TypeMappingError struct {
	Dialect string
	Type    string
}

func (e *TypeMappingError) Error() string {
	return fmt.Sprintf("dialect %s has no column type mapping for %s", e.Dialect, e.Type)
}

// OptimisticLockError 按主键和版本号更新时没有命中任何行，行已被其他事务修改或删除
type OptimisticLockError struct {
	Table   string
	Key     any
	Version any
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("row %v of table %s was modified concurrently (version %v)", e.Key, e.Table, e.Version)
}

// IsFatal 启动阶段遇到这些错误时应当终止进程
func IsFatal(err error) bool {
	var unknownDatabase *UnknownDatabaseError
	var reconciliation *SchemaReconciliationError
	return errors.As(err, &unknownDatabase) || errors.As(err, &reconciliation)
}
