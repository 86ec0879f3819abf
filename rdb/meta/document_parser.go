package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/antchfx/xmlquery"
	"github.com/go-playground/validator/v10"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TableDocument 文件形式的表声明，一个文档一张表
type TableDocument struct {
	Name        string             `yaml:"name" json:"name" toml:"name" validate:"required"`
	Alias       string             `yaml:"alias" json:"alias" toml:"alias"`
	Comment     string             `yaml:"comment" json:"comment" toml:"comment"`
	Cache       bool               `yaml:"cache" json:"cache" toml:"cache"`
	Conditional *Condition         `yaml:"conditional" json:"conditional" toml:"conditional"`
	PrimaryKey  PrimaryKeyDocument `yaml:"primaryKey" json:"primaryKey" toml:"primaryKey"`
	Fields      []FieldDocument    `yaml:"fields" json:"fields" toml:"fields" validate:"required,dive"`
	Indexes     []IndexDocument    `yaml:"indexes" json:"indexes" toml:"indexes" validate:"dive"`
}

type PrimaryKeyDocument struct {
	ConstraintName string `yaml:"constraintName" json:"constraintName" toml:"constraintName"`
	Generator      string `yaml:"generator" json:"generator" toml:"generator" validate:"omitempty,oneof=none snowflake uuid sequence"`
	Sequence       string `yaml:"sequence" json:"sequence" toml:"sequence"`
}

// FieldDocument Role 不为空时为系统字段，Reference 不为空时为引用字段，否则为固定类型字段
type FieldDocument struct {
	Name      string `yaml:"name" json:"name" toml:"name" validate:"required_without=Role"`
	Role      string `yaml:"role" json:"role" toml:"role" validate:"omitempty,oneof=primaryKey createTime updateTime version deleted"`
	Type      string `yaml:"type" json:"type" toml:"type"`
	Length    int    `yaml:"length" json:"length" toml:"length" validate:"gte=0"`
	Scale     int    `yaml:"scale" json:"scale" toml:"scale" validate:"gte=0"`
	Nullable  *bool  `yaml:"nullable" json:"nullable" toml:"nullable"`
	Default   any    `yaml:"default" json:"default" toml:"default"`
	Comment   string `yaml:"comment" json:"comment" toml:"comment"`
	Reference string `yaml:"reference" json:"reference" toml:"reference"`
}

type IndexDocument struct {
	Name    string `yaml:"name" json:"name" toml:"name"`
	Unique  bool   `yaml:"unique" json:"unique" toml:"unique"`
	Columns string `yaml:"columns" json:"columns" toml:"columns" validate:"required"`
}

// Document 待解析的原始文档，Origin 为文件路径等可定位的标识
type Document struct {
	Origin string
	Format string
	Data   []byte
}

var documentFormats = map[string]string{
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".toml": "toml",
	".xml":  "xml",
}

// LoadDocuments 读取目录下所有支持格式的表声明文件，按路径排序
func LoadDocuments(dirs ...string) ([]Document, error) {
	var documents []Document
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			format, ok := documentFormats[strings.ToLower(filepath.Ext(path))]
			if !ok {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			documents = append(documents, Document{Origin: path, Format: format, Data: data})
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "load table documents from %s failed", dir)
		}
	}
	sort.Slice(documents, func(i, j int) bool { return documents[i].Origin < documents[j].Origin })
	return documents, nil
}

// DocumentParser 基于结构化文档的表元数据解析器
type DocumentParser struct {
	settings   *SystemFields
	properties PropertySource
	documents  []Document
	validate   *validator.Validate
}

func NewDocumentParser(settings *SystemFields, properties PropertySource, documents ...Document) *DocumentParser {
	if settings == nil {
		settings = DefaultSystemFields()
	}
	return &DocumentParser{
		settings:   settings,
		properties: properties,
		documents:  documents,
		validate:   validator.New(),
	}
}

func (p *DocumentParser) Parse(ctx context.Context, registry *Registry) ([]*TableMeta, error) {
	v := NewValidator(p.settings, registry)
	var tables []*TableMeta
	for _, document := range p.documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := p.FromDocument(document)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		if err := register(v, registry, t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// FromDocument 解码并构建表元数据，根节点条件不满足时返回 nil, nil
func (p *DocumentParser) FromDocument(document Document) (*TableMeta, error) {
	doc, err := DecodeDocument(document)
	if err != nil {
		return nil, rdb.NewConfigurationError(document.Origin, "", "%v", err)
	}
	if err := p.validate.Struct(doc); err != nil {
		return nil, rdb.NewConfigurationError(document.Origin, strings.ToUpper(doc.Name), "%v", err)
	}
	if !doc.Conditional.Evaluate(p.properties) {
		return nil, nil
	}
	return p.build(document.Origin, doc)
}

func (p *DocumentParser) build(origin string, doc *TableDocument) (*TableMeta, error) {
	name := strings.ToUpper(doc.Name)
	generator, err := ParseGenerator(doc.PrimaryKey.Generator)
	if err != nil {
		return nil, rdb.NewConfigurationError(origin, name, "%v", err)
	}
	spec := TableSpec{
		Name:    doc.Name,
		Alias:   doc.Alias,
		Comment: doc.Comment,
		Cache:   doc.Cache,
		PrimaryKey: PrimaryKeyPolicy{
			ConstraintName: doc.PrimaryKey.ConstraintName,
			Generator:      generator,
			Sequence:       doc.PrimaryKey.Sequence,
		},
		Source: Source{Kind: SourceDocument, Origin: origin},
	}

	for i, fd := range doc.Fields {
		f, err := p.buildField(fd)
		if err != nil {
			return nil, rdb.NewConfigurationError(origin, name, "fields[%d]: %v", i, err)
		}
		spec.Fields = append(spec.Fields, f)
	}
	for i, id := range doc.Indexes {
		columns, err := ParseIndexColumns(id.Columns)
		if err != nil {
			return nil, rdb.NewConfigurationError(origin, name, "indexes[%d]: %v", i, err)
		}
		spec.Indexes = append(spec.Indexes, &IndexMeta{Name: id.Name, Unique: id.Unique, Columns: columns})
	}
	return NewTableMeta(spec), nil
}

func (p *DocumentParser) buildField(fd FieldDocument) (Field, error) {
	fixedMarker := fd.Type != "" || fd.Length != 0 || fd.Scale != 0 || fd.Nullable != nil || fd.Default != nil

	if fd.Role != "" {
		kind, _ := ParseSystemKind(fd.Role)
		if fd.Reference != "" {
			return nil, fmt.Errorf("reference field cannot take the %s role", kind)
		}
		column := p.settings.Column(kind)
		if column == "" {
			return nil, fmt.Errorf("no column configured for the %s role", kind)
		}
		f := &SystemField{Kind: kind, Column: column, Length: fd.Length}
		if fd.Type != "" {
			t, err := ParseDataType(fd.Type)
			if err != nil {
				return nil, err
			}
			f.Type = t
		}
		return f, nil
	}

	if fd.Reference != "" {
		if fixedMarker {
			return nil, fmt.Errorf("field %s: fixed and reference markers are mutually exclusive", fd.Name)
		}
		return &ReferenceField{Column: fd.Name, Table: fd.Reference, Comment: fd.Comment}, nil
	}

	if fd.Type == "" {
		return nil, fmt.Errorf("field %s has no type", fd.Name)
	}
	t, err := ParseDataType(fd.Type)
	if err != nil {
		return nil, err
	}
	f := &FixedField{Column: fd.Name, Type: t, Length: fd.Length, Scale: fd.Scale, Nullable: true, Comment: fd.Comment}
	if fd.Nullable != nil {
		f.Nullable = *fd.Nullable
	}
	if fd.Default != nil {
		f.Default = ParseDefault(fmt.Sprint(fd.Default), t)
	}
	return f, nil
}

// DecodeDocument 按格式解码文档
func DecodeDocument(document Document) (*TableDocument, error) {
	doc := &TableDocument{}
	var err error
	switch document.Format {
	case "yaml", "yml":
		err = yaml.Unmarshal(document.Data, doc)
	case "json":
		err = json.Unmarshal(document.Data, doc)
	case "toml":
		err = toml.Unmarshal(document.Data, doc)
	case "xml":
		doc, err = decodeXMLDocument(document.Data)
	default:
		return nil, fmt.Errorf("unsupported document format %q", document.Format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s document failed", document.Format)
	}
	return doc, nil
}

// decodeXMLDocument 解析 XML 形式的声明：
//
//	<table name="ORDERS" alias="ORD" cache="true">
//	  <conditional keys="app.order.enabled" havingValue="true" matchIfMissing="false"/>
//	  <primaryKey generator="snowflake"/>
//	  <field name="CODE" type="ShortText" length="32" nullable="false"/>
//	  <field name="CUSTOMER_ID" reference="CUSTOMER"/>
//	  <field role="createTime"/>
//	  <index unique="true" columns="CODE"/>
//	</table>
func decodeXMLDocument(data []byte) (*TableDocument, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	table, err := xmlquery.Query(root, "/table")
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("missing <table> root element")
	}

	doc := &TableDocument{
		Name:    table.SelectAttr("name"),
		Alias:   table.SelectAttr("alias"),
		Comment: table.SelectAttr("comment"),
	}
	if doc.Cache, err = xmlBool(table, "cache", false); err != nil {
		return nil, err
	}

	if node := table.SelectElement("conditional"); node != nil {
		cond := &Condition{HavingValue: node.SelectAttr("havingValue")}
		for _, key := range strings.Split(node.SelectAttr("keys"), "|") {
			if key = strings.TrimSpace(key); key != "" {
				cond.Keys = append(cond.Keys, key)
			}
		}
		if cond.MatchIfMissing, err = xmlBool(node, "matchIfMissing", false); err != nil {
			return nil, err
		}
		doc.Conditional = cond
	}

	if node := table.SelectElement("primaryKey"); node != nil {
		doc.PrimaryKey = PrimaryKeyDocument{
			ConstraintName: node.SelectAttr("constraintName"),
			Generator:      node.SelectAttr("generator"),
			Sequence:       node.SelectAttr("sequence"),
		}
	}

	fields, err := xmlquery.QueryAll(table, "field")
	if err != nil {
		return nil, err
	}
	for _, node := range fields {
		fd := FieldDocument{
			Name:      node.SelectAttr("name"),
			Role:      node.SelectAttr("role"),
			Type:      node.SelectAttr("type"),
			Comment:   node.SelectAttr("comment"),
			Reference: node.SelectAttr("reference"),
		}
		if fd.Length, err = xmlInt(node, "length"); err != nil {
			return nil, err
		}
		if fd.Scale, err = xmlInt(node, "scale"); err != nil {
			return nil, err
		}
		if hasAttr(node, "nullable") {
			b, err := xmlBool(node, "nullable", true)
			if err != nil {
				return nil, err
			}
			fd.Nullable = &b
		}
		if hasAttr(node, "default") {
			fd.Default = node.SelectAttr("default")
		}
		doc.Fields = append(doc.Fields, fd)
	}

	indexes, err := xmlquery.QueryAll(table, "index")
	if err != nil {
		return nil, err
	}
	for _, node := range indexes {
		id := IndexDocument{Name: node.SelectAttr("name"), Columns: node.SelectAttr("columns")}
		if id.Unique, err = xmlBool(node, "unique", false); err != nil {
			return nil, err
		}
		doc.Indexes = append(doc.Indexes, id)
	}
	return doc, nil
}

func hasAttr(node *xmlquery.Node, name string) bool {
	for _, attr := range node.Attr {
		if attr.Name.Local == name {
			return true
		}
	}
	return false
}

func xmlBool(node *xmlquery.Node, name string, def bool) (bool, error) {
	if !hasAttr(node, name) {
		return def, nil
	}
	b, err := strconv.ParseBool(node.SelectAttr(name))
	if err != nil {
		return false, fmt.Errorf("attribute %s of <%s>: %v", name, node.Data, err)
	}
	return b, nil
}

func xmlInt(node *xmlquery.Node, name string) (int, error) {
	if !hasAttr(node, name) {
		return 0, nil
	}
	n, err := strconv.Atoi(node.SelectAttr(name))
	if err != nil {
		return 0, fmt.Errorf("attribute %s of <%s>: %v", name, node.Data, err)
	}
	return n, nil
}
