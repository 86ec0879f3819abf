package meta

import (
	"github.com/hatlonely/rdbx/rdb"
)

// Validator 两种解析器共用的表元数据校验
type Validator struct {
	settings *SystemFields
	registry *Registry
}

func NewValidator(settings *SystemFields, registry *Registry) *Validator {
	if settings == nil {
		settings = DefaultSystemFields()
	}
	return &Validator{settings: settings, registry: registry}
}

// Validate 校验单张表：字段非空且不重名、普通字段不占用系统保留名、每种系统角色至多一个、
// 索引只引用已声明字段且不重复、表名/别名不与已注册表冲突
func (v *Validator) Validate(t *TableMeta) error {
	source := t.Source().Origin
	if t.Name() == "" {
		return rdb.NewConfigurationError(source, "", "table name is empty")
	}
	if len(t.fields) == 0 {
		return rdb.NewConfigurationError(source, t.Name(), "table declares no fields")
	}

	seen := map[string]bool{}
	roles := map[SystemKind]string{}
	for _, f := range t.fields {
		name := f.Name()
		if name == "" {
			return rdb.NewConfigurationError(source, t.Name(), "field %q has no column name", f.Property())
		}
		if seen[name] {
			return rdb.NewConfigurationError(source, t.Name(), "duplicate field %s", name)
		}
		seen[name] = true

		switch sf := f.(type) {
		case *SystemField:
			if prev, ok := roles[sf.Kind]; ok {
				return rdb.NewConfigurationError(source, t.Name(), "%s role declared twice (%s and %s)", sf.Kind, prev, fieldLabel(f))
			}
			roles[sf.Kind] = fieldLabel(f)
		case *ReferenceField:
			if sf.Table == "" {
				return rdb.NewConfigurationError(source, t.Name(), "reference field %s has no target table", name)
			}
			if kind, ok := v.settings.Reserved(name); ok {
				return rdb.NewConfigurationError(source, t.Name(), "field %s uses the name reserved for %s", name, kind)
			}
		default:
			if kind, ok := v.settings.Reserved(name); ok {
				return rdb.NewConfigurationError(source, t.Name(), "field %s uses the name reserved for %s", name, kind)
			}
		}
	}

	if t.primaryKey.Generator != GeneratorNone {
		if _, ok := t.SystemField(PrimaryKey); !ok {
			return rdb.NewConfigurationError(source, t.Name(), "primary key generator %s requires a primary key field", t.primaryKey.Generator)
		}
	}

	keys := map[string]bool{}
	for _, idx := range t.indexes {
		if len(idx.Columns) == 0 {
			return rdb.NewConfigurationError(source, t.Name(), "index %s has no columns", idx.Name)
		}
		for _, col := range idx.Columns {
			if !seen[col.Name] {
				return rdb.NewConfigurationError(source, t.Name(), "index %s references undeclared field %s", idx.CanonicalKey(), col.Name)
			}
		}
		key := idx.CanonicalKey()
		if keys[key] {
			return rdb.NewConfigurationError(source, t.Name(), "duplicate index %s", key)
		}
		keys[key] = true
	}

	if v.registry != nil {
		if existing, key, ok := v.registry.Conflict(t); ok {
			return rdb.NewConfigurationError(source, t.Name(), "name %s collides with table %s declared in %s",
				key, existing.Name(), existing.Source())
		}
	}
	return nil
}

func fieldLabel(f Field) string {
	if f.Property() != "" {
		return f.Property()
	}
	return f.Name()
}
