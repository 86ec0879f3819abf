package dialect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// introspection 各方言的元数据查询，统一返回列：
// fields:  NAME, TYPE_NAME, LENGTH, SCALE, NULLABLE, DEFAULT, COMMENT
// indexes: INDEX_NAME, IS_UNIQUE, COLUMN_NAME, IS_DESC, IS_PRIMARY
// 查询使用 ? 占位符，执行前经过 Rebind；withSchema 为 true 时第一个参数是 schema
type introspection struct {
	existTable string
	existView  string
	fields     string
	indexes    string
	withSchema bool
}

func (b *base) args(name string, in *introspection) []any {
	if in.withSchema {
		return []any{b.schema, name}
	}
	return []any{name}
}

func (b *base) queryExists(ctx context.Context, q Queryer, query string, args ...any) (bool, error) {
	var count int64
	if err := q.QueryRowContext(ctx, b.Rebind(query), args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (b *base) existTable(ctx context.Context, q Queryer, in *introspection, name string) (bool, error) {
	ok, err := b.queryExists(ctx, q, in.existTable, b.args(name, in)...)
	if err != nil {
		return false, errors.Wrapf(err, "check table %s failed", name)
	}
	return ok, nil
}

func (b *base) existView(ctx context.Context, q Queryer, in *introspection, name string) (bool, error) {
	ok, err := b.queryExists(ctx, q, in.existView, b.args(name, in)...)
	if err != nil {
		return false, errors.Wrapf(err, "check view %s failed", name)
	}
	return ok, nil
}

func (b *base) queryFields(ctx context.Context, q Queryer, query string, args ...any) ([]*FieldStruct, error) {
	rows, err := q.QueryContext(ctx, b.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []*FieldStruct
	for rows.Next() {
		var (
			name, typeName    string
			length, scale     sql.NullInt64
			nullable          sql.NullString
			defaultV, comment sql.NullString
		)
		if err := rows.Scan(&name, &typeName, &length, &scale, &nullable, &defaultV, &comment); err != nil {
			return nil, err
		}
		f := &FieldStruct{
			Name:     strings.ToUpper(name),
			TypeName: strings.ToUpper(strings.TrimSpace(typeName)),
			TypeCode: TypeCodeOf(typeName),
			Length:   int(length.Int64),
			Scale:    int(scale.Int64),
			Nullable: isTrue(nullable.String),
			Default:  nullString(defaultV),
			Comment:  comment.String,
		}
		if l, s, ok := ParseTypeSize(typeName); ok && f.Length == 0 {
			f.Length, f.Scale = l, s
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (b *base) queryIndexes(ctx context.Context, q Queryer, query string, args ...any) (map[string]*IndexStruct, *PrimaryKeyStruct, error) {
	rows, err := q.QueryContext(ctx, b.Rebind(query), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	builder := newIndexBuilder()
	var pk *PrimaryKeyStruct
	for rows.Next() {
		var (
			name, column            string
			unique, desc, isPrimary int64
		)
		if err := rows.Scan(&name, &unique, &column, &desc, &isPrimary); err != nil {
			return nil, nil, err
		}
		if isPrimary != 0 {
			if pk == nil {
				pk = &PrimaryKeyStruct{Name: strings.ToUpper(name)}
			}
			pk.Columns = append(pk.Columns, strings.ToUpper(column))
			continue
		}
		builder.add(name, unique != 0, column, desc != 0)
	}
	return builder.indexes, pk, rows.Err()
}

func (b *base) tableStruct(ctx context.Context, q Queryer, in *introspection, name string) (*TableObjectStruct, error) {
	fields, err := b.queryFields(ctx, q, in.fields, b.args(name, in)...)
	if err != nil {
		return nil, errors.Wrapf(err, "query columns of table %s failed", name)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	indexes, pk, err := b.queryIndexes(ctx, q, in.indexes, b.args(name, in)...)
	if err != nil {
		return nil, errors.Wrapf(err, "query indexes of table %s failed", name)
	}
	return &TableObjectStruct{Name: strings.ToUpper(name), Fields: fields, PrimaryKey: pk, Indexes: indexes}, nil
}

func (b *base) viewStruct(ctx context.Context, q Queryer, in *introspection, name string) (*ViewObjectStruct, error) {
	fields, err := b.queryFields(ctx, q, in.fields, b.args(name, in)...)
	if err != nil {
		return nil, errors.Wrapf(err, "query columns of view %s failed", name)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &ViewObjectStruct{Name: strings.ToUpper(name), Fields: fields}, nil
}

func isTrue(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "Y", "1", "TRUE", "T":
		return true
	}
	return false
}

func (b *base) ExistTable(ctx context.Context, q Queryer, name string) (bool, error) {
	return b.existTable(ctx, q, b.introspection, name)
}

func (b *base) TableStruct(ctx context.Context, q Queryer, name string) (*TableObjectStruct, error) {
	return b.tableStruct(ctx, q, b.introspection, name)
}

func (b *base) ExistView(ctx context.Context, q Queryer, name string) (bool, error) {
	return b.existView(ctx, q, b.introspection, name)
}

func (b *base) ViewStruct(ctx context.Context, q Queryer, name string) (*ViewObjectStruct, error) {
	return b.viewStruct(ctx, q, b.introspection, name)
}
