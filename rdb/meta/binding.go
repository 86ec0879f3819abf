package meta

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Binding 结构体字段到列的静态映射，启动时由标签解析器构建，运行期只查表不再反射解析标签
type Binding struct {
	typ     reflect.Type
	columns map[string][]int
	table   *TableMeta
}

// NewBinding 创建结构体绑定，columns 为列名到字段索引路径的映射
func NewBinding(typ reflect.Type, columns map[string][]int) *Binding {
	return &Binding{typ: typ, columns: columns}
}

func (b *Binding) Type() reflect.Type { return b.typ }

// Values 按表字段顺序取出结构体的值，未绑定的列为 nil
func (b *Binding) Values(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("nil %s", b.typ)
		}
		rv = rv.Elem()
	}
	if rv.Type() != b.typ {
		return nil, fmt.Errorf("expected %s, got %s", b.typ, rv.Type())
	}

	values := make([]any, len(b.table.fields))
	for i, f := range b.table.fields {
		index, ok := b.columns[f.Name()]
		if !ok {
			continue
		}
		fv := rv.FieldByIndex(index)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		values[i] = fv.Interface()
	}
	return values, nil
}

// Assign 将按表字段顺序排列的值写入结构体指针
func (b *Binding) Assign(values []any, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.Elem().Type() != b.typ {
		return fmt.Errorf("dest must be *%s", b.typ)
	}
	rv = rv.Elem()

	for i, f := range b.table.fields {
		index, ok := b.columns[f.Name()]
		if !ok || i >= len(values) || values[i] == nil {
			continue
		}
		if err := setFieldValue(rv.FieldByIndex(index), values[i]); err != nil {
			return fmt.Errorf("failed to set field %s: %v", f.Name(), err)
		}
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// setFieldValue 设置字段值，兼容驱动返回的常见表示（int64 布尔、[]byte 文本、字符串时间）
func setFieldValue(fieldValue reflect.Value, value any) error {
	if fieldValue.Kind() == reflect.Ptr {
		ptr := reflect.New(fieldValue.Type().Elem())
		if err := setFieldValue(ptr.Elem(), value); err != nil {
			return err
		}
		fieldValue.Set(ptr)
		return nil
	}

	fieldType := fieldValue.Type()
	if b, ok := value.([]byte); ok && fieldType.Kind() != reflect.Slice {
		value = string(b)
	}

	if fieldType.Kind() == reflect.Bool {
		switch v := value.(type) {
		case bool:
			fieldValue.SetBool(v)
			return nil
		case int64:
			fieldValue.SetBool(v != 0)
			return nil
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			fieldValue.SetBool(parsed)
			return nil
		}
	}

	if fieldType == timeType {
		if s, ok := value.(string); ok {
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05", "2006-01-02"} {
				if parsed, err := time.Parse(layout, s); err == nil {
					fieldValue.Set(reflect.ValueOf(parsed))
					return nil
				}
			}
			return fmt.Errorf("cannot parse time string %s", s)
		}
	}

	if s, ok := value.(string); ok {
		switch fieldType.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return err
			}
			fieldValue.SetInt(n)
			return nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return err
			}
			fieldValue.SetUint(n)
			return nil
		case reflect.Float32, reflect.Float64:
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			fieldValue.SetFloat(n)
			return nil
		}
	}

	valueType := reflect.TypeOf(value)
	if fieldType.Kind() == reflect.String && valueType.Kind() != reflect.String {
		fieldValue.SetString(fmt.Sprint(value))
		return nil
	}
	if valueType.AssignableTo(fieldType) {
		fieldValue.Set(reflect.ValueOf(value))
		return nil
	}
	if valueType.ConvertibleTo(fieldType) && valueType.Kind() != reflect.String {
		fieldValue.Set(reflect.ValueOf(value).Convert(fieldType))
		return nil
	}
	return fmt.Errorf("cannot convert %v to %v", valueType, fieldType)
}
