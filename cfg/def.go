package cfg

import (
	"reflect"

	"github.com/pkg/errors"
)

// SetDefaults 零值字段按 def 标签填充，嵌套结构体和非空结构体指针递归处理
func SetDefaults(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("set defaults requires a non-nil pointer, got %T", object)
	}
	return setDefaults(rv.Elem(), "")
}

func setDefaults(v reflect.Value, path string) error {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct || v.Type() == timeType {
		return nil
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := v.Field(i)
		def, ok := field.Tag.Lookup("def")
		if ok && fv.IsZero() {
			if fv.Kind() == reflect.Ptr {
				fv.Set(reflect.New(field.Type.Elem()))
				fv = fv.Elem()
			}
			if err := convertValue(def, fv, join(path, field.Name)); err != nil {
				return errors.WithMessagef(err, "invalid default of %s", field.Name)
			}
			continue
		}
		if err := setDefaults(fv, join(path, field.Name)); err != nil {
			return err
		}
	}
	return nil
}
