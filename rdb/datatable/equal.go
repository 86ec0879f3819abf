package datatable

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/rdbx/rdb/meta"
)

// Equal 按列的逻辑类型比较两个值，nil 只等于 nil
// 数值按数学值比较（5 等于 5.0 和 "5"），时间按列的精度截断后比较，
// 布尔与 0/1 互相比较，文本的 string 与 []byte 互相比较
func Equal(col meta.Column, a, b any) bool {
	a, b = unwrap(a), unwrap(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch {
	case col.Type == meta.Number:
		if x, ok := toRat(a); ok {
			if y, ok := toRat(b); ok {
				return x.Cmp(y) == 0
			}
		}
	case col.Type == meta.Boolean:
		if x, ok := toBool(a); ok {
			if y, ok := toBool(b); ok {
				return x == y
			}
		}
	case col.Type.IsTemporal():
		if x, ok := toTime(a); ok {
			if y, ok := toTime(b); ok {
				return truncate(col, x).Equal(truncate(col, y))
			}
		}
	case col.Type == meta.Binary || col.Type == meta.LongBinary:
		if x, ok := toBytes(a); ok {
			if y, ok := toBytes(b); ok {
				return bytes.Equal(x, y)
			}
		}
	case col.Type.IsText():
		if x, ok := toText(a); ok {
			if y, ok := toText(b); ok {
				return x == y
			}
		}
	}
	return reflect.DeepEqual(a, b)
}

// unwrap 解开指针和 driver.Valuer（sql.NullString 等）
func unwrap(v any) any {
	for v != nil {
		// 值接收者的 Value 遇到 nil 指针会 panic，先判空
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil
		}
		switch v.(type) {
		case *big.Rat, *big.Int:
			return v
		}
		if valuer, ok := v.(driver.Valuer); ok {
			value, err := valuer.Value()
			if err != nil {
				return v
			}
			if _, same := value.(driver.Valuer); same {
				return value
			}
			v = value
			continue
		}
		if rv.Kind() != reflect.Ptr {
			return v
		}
		v = rv.Elem().Interface()
	}
	return nil
}

func toRat(v any) (*big.Rat, bool) {
	switch x := v.(type) {
	case int:
		return new(big.Rat).SetInt64(int64(x)), true
	case int8:
		return new(big.Rat).SetInt64(int64(x)), true
	case int16:
		return new(big.Rat).SetInt64(int64(x)), true
	case int32:
		return new(big.Rat).SetInt64(int64(x)), true
	case int64:
		return new(big.Rat).SetInt64(x), true
	case uint:
		return new(big.Rat).SetUint64(uint64(x)), true
	case uint8:
		return new(big.Rat).SetUint64(uint64(x)), true
	case uint16:
		return new(big.Rat).SetUint64(uint64(x)), true
	case uint32:
		return new(big.Rat).SetUint64(uint64(x)), true
	case uint64:
		return new(big.Rat).SetUint64(x), true
	case float32:
		return ratFromFloat(float64(x))
	case float64:
		return ratFromFloat(x)
	case bool:
		if x {
			return big.NewRat(1, 1), true
		}
		return new(big.Rat), true
	case string:
		return new(big.Rat).SetString(strings.TrimSpace(x))
	case []byte:
		return new(big.Rat).SetString(strings.TrimSpace(string(x)))
	case *big.Rat:
		return x, true
	case *big.Int:
		return new(big.Rat).SetInt(x), true
	}
	return nil, false
}

// ratFromFloat 按最短十进制表示转换，0.1 与 "0.1" 相等
func ratFromFloat(f float64) (*big.Rat, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		return parseBool(x)
	case []byte:
		return parseBool(string(x))
	}
	if r, ok := toRat(v); ok {
		switch {
		case r.Sign() == 0:
			return false, true
		case r.Cmp(big.NewRat(1, 1)) == 0:
			return true, true
		}
	}
	return false, false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, true
	case "0", "f", "false", "n", "no":
		return false, true
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"15:04:05.999999999",
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTime(x)
	case []byte:
		return parseTime(string(x))
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// truncate 按列精度截断：Date 只保留日期，Time 只保留时分秒，Timestamp 保留 Scale 位小数秒
func truncate(col meta.Column, t time.Time) time.Time {
	scale := col.Scale
	if scale < 0 {
		scale = 0
	}
	if scale > 9 {
		scale = 9
	}
	precision := time.Duration(math.Pow10(9 - scale))

	switch col.Type {
	case meta.Date:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case meta.Time:
		h, m, s := t.Clock()
		ns := time.Duration(t.Nanosecond()).Truncate(precision)
		return time.Date(1970, 1, 1, h, m, s, int(ns), time.UTC)
	}
	return t.Truncate(precision)
}

func toBytes(v any) ([]byte, bool) {
	switch x := v.(type) {
	case []byte:
		return x, true
	case string:
		return []byte(x), true
	}
	return nil, false
}

func toText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case fmt.Stringer:
		return x.String(), true
	}
	return "", false
}
