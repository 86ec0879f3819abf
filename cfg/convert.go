package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// convert 将解码后的数据写入 object 指向的值
// 结构体字段名取 cfg 标签，其次 json 标签，最后字段名，匹配大小写不敏感
// any 类型的字段遇到 map 时保存为 *Config，供 ref.New 转成构造函数的参数
func convert(src any, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("convert target must be a non-nil pointer, got %T", object)
	}
	return convertValue(src, rv.Elem(), "")
}

func convertValue(src any, dst reflect.Value, path string) error {
	if src == nil {
		return nil
	}
	if c, ok := src.(*Config); ok {
		src = c.data
	}

	switch {
	case dst.Kind() == reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem(), path)
	case dst.Kind() == reflect.Interface:
		if m, ok := src.(map[string]any); ok && reflect.TypeOf(&Config{}).Implements(dst.Type()) {
			dst.Set(reflect.ValueOf(&Config{data: m}))
			return nil
		}
		sv := reflect.ValueOf(src)
		if !sv.Type().AssignableTo(dst.Type()) {
			return errors.Errorf("%s: cannot assign %T to %v", path, src, dst.Type())
		}
		dst.Set(sv)
		return nil
	case dst.Type() == durationType:
		d, err := toDuration(src)
		if err != nil {
			return errors.WithMessage(err, path)
		}
		dst.SetInt(int64(d))
		return nil
	case dst.Type() == timeType:
		t, err := toTime(src)
		if err != nil {
			return errors.WithMessage(err, path)
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		m, ok := src.(map[string]any)
		if !ok {
			return errors.Errorf("%s: expected map, got %T", path, src)
		}
		return convertStruct(m, dst, path)
	case reflect.Map:
		m, ok := src.(map[string]any)
		if !ok {
			return errors.Errorf("%s: expected map, got %T", path, src)
		}
		if dst.IsNil() {
			dst.Set(reflect.MakeMapWithSize(dst.Type(), len(m)))
		}
		for k, v := range m {
			key := reflect.New(dst.Type().Key()).Elem()
			if err := convertScalar(k, key, path); err != nil {
				return err
			}
			value := reflect.New(dst.Type().Elem()).Elem()
			if err := convertValue(v, value, join(path, k)); err != nil {
				return err
			}
			dst.SetMapIndex(key, value)
		}
		return nil
	case reflect.Slice:
		s, ok := src.([]any)
		if !ok {
			// 环境变量等只能给出字符串，按逗号拆分
			str, isString := src.(string)
			if !isString {
				return errors.Errorf("%s: expected list, got %T", path, src)
			}
			for _, part := range strings.Split(str, ",") {
				s = append(s, strings.TrimSpace(part))
			}
		}
		slice := reflect.MakeSlice(dst.Type(), len(s), len(s))
		for i, v := range s {
			if err := convertValue(v, slice.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		dst.Set(slice)
		return nil
	}
	return convertScalar(src, dst, path)
}

func convertStruct(m map[string]any, dst reflect.Value, path string) error {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}
		if field.Anonymous && name == "" {
			if err := convertValue(m, dst.Field(i), path); err != nil {
				return err
			}
			continue
		}
		if name == "" {
			name = field.Name
		}
		v, ok := child(m, name)
		if !ok {
			continue
		}
		if err := convertValue(v, dst.Field(i), join(path, name)); err != nil {
			return err
		}
	}
	return nil
}

// fieldName 嵌入字段没有标签时返回空，表示展开
func fieldName(field reflect.StructField) string {
	for _, tag := range []string{"cfg", "json"} {
		if v, ok := field.Tag.Lookup(tag); ok {
			return strings.Split(v, ",")[0]
		}
	}
	if field.Anonymous {
		return ""
	}
	return field.Name
}

func convertScalar(src any, dst reflect.Value, path string) error {
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	str, isString := src.(string)
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(fmt.Sprint(src))
		return nil
	case reflect.Bool:
		if isString {
			b, err := strconv.ParseBool(strings.TrimSpace(str))
			if err != nil {
				return errors.Wrapf(err, "%s: parse bool", path)
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if isString {
			n, err := strconv.ParseInt(strings.TrimSpace(str), 0, dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "%s: parse int", path)
			}
			dst.SetInt(n)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if isString {
			n, err := strconv.ParseUint(strings.TrimSpace(str), 0, dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "%s: parse uint", path)
			}
			dst.SetUint(n)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if isString {
			f, err := strconv.ParseFloat(strings.TrimSpace(str), dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "%s: parse float", path)
			}
			dst.SetFloat(f)
			return nil
		}
	}
	if !isString && sv.Kind() != reflect.Bool && sv.Type().ConvertibleTo(dst.Type()) && dst.Kind() != reflect.Bool {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("%s: cannot convert %T to %v", path, src, dst.Type())
}

func toDuration(src any) (time.Duration, error) {
	switch v := src.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		return d, errors.Wrapf(err, "parse duration %q", v)
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case time.Duration:
		return v, nil
	}
	return 0, errors.Errorf("cannot convert %T to duration", src)
}

func toTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, errors.Errorf("cannot parse time %q", v)
	case int64:
		return time.Unix(v, 0), nil
	case int:
		return time.Unix(int64(v), 0), nil
	}
	return time.Time{}, errors.Errorf("cannot convert %T to time", src)
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
