package meta

import (
	"fmt"
	"strings"
)

// DataType 与数据库无关的逻辑列类型
type DataType int

const (
	ShortText DataType = iota + 1
	UnicodeShortText
	LongText
	UnicodeLongText
	Binary
	LongBinary
	Number
	Date
	Time
	Timestamp
	Boolean
)

var dataTypeNames = map[DataType]string{
	ShortText:        "ShortText",
	UnicodeShortText: "UnicodeShortText",
	LongText:         "LongText",
	UnicodeLongText:  "UnicodeLongText",
	Binary:           "Binary",
	LongBinary:       "LongBinary",
	Number:           "Number",
	Date:             "Date",
	Time:             "Time",
	Timestamp:        "Timestamp",
	Boolean:          "Boolean",
}

// DataTypes 返回全部逻辑类型，顺序固定
func DataTypes() []DataType {
	return []DataType{ShortText, UnicodeShortText, LongText, UnicodeLongText, Binary, LongBinary,
		Number, Date, Time, Timestamp, Boolean}
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// IsText 文本类型
func (t DataType) IsText() bool {
	return t == ShortText || t == UnicodeShortText || t == LongText || t == UnicodeLongText
}

// IsTemporal 日期时间类型
func (t DataType) IsTemporal() bool {
	return t == Date || t == Time || t == Timestamp
}

// ParseDataType 按名称解析逻辑类型，大小写不敏感
func ParseDataType(name string) (DataType, error) {
	for t, n := range dataTypeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", name)
}
