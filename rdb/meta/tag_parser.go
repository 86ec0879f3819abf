package meta

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/inflect"
	"github.com/hatlonely/rdbx/rdb"
)

// Table 表声明标记，嵌入到结构体中并在该字段上声明表级标签：
//
//	type Order struct {
//		meta.Table `table:"ORDERS,alias=ORD,cache,pk=snowflake" index:"CUSTOMER_ID,CREATE_TIME DESC" conditional:"keys=app.order.enabled,value=true"`
//		ID         int64     `rdb:",primaryKey"`
//		Code       string    `rdb:"code,length=32,required,unique"`
//		CustomerID int64     `rdb:"customer_id,reference=CUSTOMER"`
//		CreateTime time.Time `rdb:",createTime"`
//	}
type Table struct{}

// Tabler 实现该接口的结构体可以用方法指定表名
type Tabler interface {
	TableName() string
}

var tableMarkerType = reflect.TypeOf(Table{})

// TagParser 基于结构体标签的表元数据解析器
type TagParser struct {
	settings   *SystemFields
	properties PropertySource
	decls      []any
}

// NewTagParser decls 由外部扫描器提供的结构体值或指针
func NewTagParser(settings *SystemFields, properties PropertySource, decls ...any) *TagParser {
	if settings == nil {
		settings = DefaultSystemFields()
	}
	return &TagParser{settings: settings, properties: properties, decls: decls}
}

func (p *TagParser) Parse(ctx context.Context, registry *Registry) ([]*TableMeta, error) {
	validator := NewValidator(p.settings, registry)
	var tables []*TableMeta
	for _, decl := range p.decls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := p.FromStruct(decl)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		if err := register(validator, registry, t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// FromStruct 从结构体构建表元数据，条件不满足时返回 nil, nil
func (p *TagParser) FromStruct(v any) (*TableMeta, error) {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, rdb.NewConfigurationError(fmt.Sprintf("%T", v), "", "expected struct, got %T", v)
	}
	source := rt.PkgPath() + "." + rt.Name()

	marker, ok := findMarker(rt)
	if !ok {
		return nil, rdb.NewConfigurationError(source, "", "struct does not embed meta.Table")
	}

	cond, err := ParseCondition(marker.Tag.Get("conditional"))
	if err != nil {
		return nil, rdb.NewConfigurationError(source, "", "%v", err)
	}
	if !cond.Evaluate(p.properties) {
		return nil, nil
	}

	spec := TableSpec{Source: Source{Kind: SourceAttribute, Origin: source}}
	if err := parseTableTag(&spec, marker.Tag.Get("table")); err != nil {
		return nil, rdb.NewConfigurationError(source, spec.Name, "%v", err)
	}
	if spec.Name == "" {
		if tabler, ok := reflect.New(rt).Elem().Interface().(Tabler); ok {
			spec.Name = tabler.TableName()
		}
	}
	if spec.Name == "" {
		spec.Name = inflect.Underscore(rt.Name())
	}
	spec.Name = strings.ToUpper(spec.Name)

	columns := map[string][]int{}
	named := map[string]*IndexMeta{}
	var namedOrder []string

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.Anonymous && sf.Type == tableMarkerType {
			continue
		}
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("rdb")
		if tag == "-" {
			continue
		}

		f, indexes, err := p.parseFieldTag(sf, tag)
		if err != nil {
			return nil, rdb.NewConfigurationError(source, spec.Name, "field %s: %v", sf.Name, err)
		}
		spec.Fields = append(spec.Fields, f)
		columns[strings.ToUpper(f.Name())] = sf.Index

		for _, idx := range indexes {
			col := IndexColumn{Name: f.Name()}
			if idx.Name == "" {
				spec.Indexes = append(spec.Indexes, &IndexMeta{Unique: idx.Unique, Columns: []IndexColumn{col}})
				continue
			}
			// 同名索引合并为联合索引，列顺序为字段声明顺序
			if existing, ok := named[idx.Name]; ok {
				if existing.Unique != idx.Unique {
					return nil, rdb.NewConfigurationError(source, spec.Name, "index %s mixes unique and non-unique columns", idx.Name)
				}
				existing.Columns = append(existing.Columns, col)
			} else {
				named[idx.Name] = &IndexMeta{Name: idx.Name, Unique: idx.Unique, Columns: []IndexColumn{col}}
				namedOrder = append(namedOrder, idx.Name)
			}
		}
	}
	for _, name := range namedOrder {
		spec.Indexes = append(spec.Indexes, named[name])
	}

	tableIndexes, err := parseIndexTag(marker.Tag.Get("index"))
	if err != nil {
		return nil, rdb.NewConfigurationError(source, spec.Name, "%v", err)
	}
	spec.Indexes = append(spec.Indexes, tableIndexes...)
	spec.Binding = NewBinding(rt, columns)

	return NewTableMeta(spec), nil
}

func findMarker(rt reflect.Type) (reflect.StructField, bool) {
	for i := 0; i < rt.NumField(); i++ {
		if f := rt.Field(i); f.Anonymous && f.Type == tableMarkerType {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// parseTableTag 解析表级标签：NAME,alias=X,cache,comment=Y,pk=snowflake,pkName=PK_X,sequence=SEQ_X
func parseTableTag(spec *TableSpec, tag string) error {
	if tag == "" {
		return nil
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		spec.Name = strings.TrimSpace(parts[0])
		parts = parts[1:]
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "alias":
			spec.Alias = value
		case "comment":
			spec.Comment = value
		case "cache":
			spec.Cache = true
			if hasValue {
				b, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("invalid cache flag %q", value)
				}
				spec.Cache = b
			}
		case "pk", "generator":
			g, err := ParseGenerator(value)
			if err != nil {
				return err
			}
			spec.PrimaryKey.Generator = g
		case "pkName":
			spec.PrimaryKey.ConstraintName = value
		case "sequence":
			spec.PrimaryKey.Sequence = value
		default:
			return fmt.Errorf("unknown table option %q", key)
		}
	}
	return nil
}

// ParseGenerator 解析主键生成策略
func ParseGenerator(value string) (Generator, error) {
	switch g := Generator(strings.ToLower(strings.TrimSpace(value))); g {
	case GeneratorNone, GeneratorSnowflake, GeneratorUUID, GeneratorSequence:
		return g, nil
	case "none":
		return GeneratorNone, nil
	}
	return "", fmt.Errorf("unknown primary key generator %q", value)
}

// parseIndexTag 解析表级索引标签，多个索引用分号分隔，unique: 前缀表示唯一索引
func parseIndexTag(tag string) ([]*IndexMeta, error) {
	var indexes []*IndexMeta
	for _, decl := range strings.Split(tag, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		idx := &IndexMeta{}
		if rest, ok := strings.CutPrefix(decl, "unique:"); ok {
			idx.Unique = true
			decl = rest
		}
		columns, err := ParseIndexColumns(decl)
		if err != nil {
			return nil, err
		}
		idx.Columns = columns
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

type fieldIndex struct {
	Name   string
	Unique bool
}

// parseFieldTag 解析字段标签
// rdb:"column,type=ShortText,length=50,scale=2,required,default=x,comment=y,index,unique=UX_NAME"
// rdb:",primaryKey"  rdb:"customer_id,reference=CUSTOMER"
func (p *TagParser) parseFieldTag(sf reflect.StructField, tag string) (Field, []fieldIndex, error) {
	column := strings.ToUpper(inflect.Underscore(sf.Name))
	parts := strings.Split(tag, ",")
	if tag != "" && parts[0] != "" && !strings.Contains(parts[0], "=") {
		column = strings.ToUpper(strings.TrimSpace(parts[0]))
		parts = parts[1:]
	} else if tag != "" && parts[0] == "" {
		parts = parts[1:]
	}

	fixed := &FixedField{Column: column, Prop: sf.Name, Nullable: true}
	fixed.Type, fixed.Length = inferDataType(sf.Type)
	var (
		kind        SystemKind
		reference   string
		fixedMarker bool
		indexes     []fieldIndex
		rawDefault  *string
	)

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if k, ok := ParseSystemKind(key); ok && !hasValue {
			if kind != 0 {
				return nil, nil, fmt.Errorf("field marked as both %s and %s", kind, k)
			}
			kind = k
			continue
		}

		switch key {
		case "primary", "pk":
			if kind != 0 && kind != PrimaryKey {
				return nil, nil, fmt.Errorf("field marked as both %s and %s", kind, PrimaryKey)
			}
			kind = PrimaryKey
		case "type":
			t, err := ParseDataType(value)
			if err != nil {
				return nil, nil, err
			}
			fixed.Type = t
			fixedMarker = true
		case "length", "size":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid length %q", value)
			}
			fixed.Length = n
			fixedMarker = true
		case "scale":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid scale %q", value)
			}
			fixed.Scale = n
			fixedMarker = true
		case "required", "not_null", "notnull":
			fixed.Nullable = false
			fixedMarker = true
		case "nullable":
			fixed.Nullable = true
			fixedMarker = true
		case "default":
			v := value
			rawDefault = &v
			fixedMarker = true
		case "comment":
			fixed.Comment = value
		case "reference", "ref":
			if value == "" {
				return nil, nil, fmt.Errorf("reference requires a table name")
			}
			reference = value
		case "index":
			indexes = append(indexes, fieldIndex{Name: strings.ToUpper(value)})
		case "unique":
			indexes = append(indexes, fieldIndex{Name: strings.ToUpper(value), Unique: true})
		default:
			return nil, nil, fmt.Errorf("unknown option %q", key)
		}
	}

	if reference != "" && fixedMarker {
		return nil, nil, fmt.Errorf("fixed and reference markers are mutually exclusive")
	}
	if reference != "" && kind != 0 {
		return nil, nil, fmt.Errorf("reference field cannot take the %s role", kind)
	}

	if rawDefault != nil {
		fixed.Default = ParseDefault(*rawDefault, fixed.Type)
	}

	switch {
	case kind != 0:
		name := p.settings.Column(kind)
		if name == "" {
			return nil, nil, fmt.Errorf("no column configured for the %s role", kind)
		}
		f := &SystemField{Kind: kind, Column: name, Prop: sf.Name}
		if fixedMarker {
			f.Type, f.Length = fixed.Type, fixed.Length
		}
		return f, indexes, nil
	case reference != "":
		return &ReferenceField{Column: column, Prop: sf.Name, Table: strings.ToUpper(reference), Comment: fixed.Comment}, indexes, nil
	}
	return fixed, indexes, nil
}

// inferDataType 从 Go 类型推断逻辑类型和默认长度
func inferDataType(t reflect.Type) (DataType, int) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == reflect.TypeOf(time.Time{}) {
		return Timestamp, 0
	}
	switch t.Kind() {
	case reflect.String:
		return ShortText, 255
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number, 19
	case reflect.Float32, reflect.Float64:
		return Number, 0
	case reflect.Bool:
		return Boolean, 0
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return LongBinary, 0
		}
	}
	// 其他复杂类型按 JSON 文本存储
	return LongText, 0
}

// ParseDefault 按逻辑类型解析默认值字面量
func ParseDefault(value string, t DataType) any {
	switch {
	case t == Number:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case t == Boolean:
		return value == "true" || value == "1"
	case t.IsText():
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			return value[1 : len(value)-1]
		}
	}
	return value
}
