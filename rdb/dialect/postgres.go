package dialect

import (
	"fmt"

	"github.com/hatlonely/rdbx/rdb/meta"
)

var postgresKeywords = []string{
	"ANALYSE", "ANALYZE", "ARRAY", "ASYMMETRIC", "BOTH", "CAST", "COLLATE", "CONCURRENTLY", "CURRENT_CATALOG",
	"CURRENT_ROLE", "CURRENT_SCHEMA", "CURRENT_USER", "DEFERRABLE", "DO", "EXCEPT", "FALSE", "FETCH",
	"FREEZE", "ILIKE", "INITIALLY", "ISNULL", "LATERAL", "LEADING", "LIMIT", "LOCALTIME", "LOCALTIMESTAMP",
	"NATURAL", "NOTNULL", "OFFSET", "ONLY", "OVERLAPS", "PLACING", "RETURNING", "SESSION_USER", "SIMILAR",
	"SOME", "SYMMETRIC", "TABLESAMPLE", "TRAILING", "TRUE", "USING", "VARIADIC", "VERBOSE", "WINDOW",
}

// PostgreSQL PostgreSQL 方言
// 未加引号的标识符会被折叠为小写，元数据查询按大小写不敏感比较
type PostgreSQL struct {
	base
}

var postgresIntrospection = &introspection{
	existTable: "SELECT COUNT(*) FROM information_schema.tables " +
		"WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema()) AND UPPER(table_name) = UPPER(?) AND table_type = 'BASE TABLE'",
	existView: "SELECT COUNT(*) FROM information_schema.tables " +
		"WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema()) AND UPPER(table_name) = UPPER(?) AND table_type = 'VIEW'",
	fields: "SELECT c.column_name, c.data_type, COALESCE(c.character_maximum_length, c.numeric_precision, 0), COALESCE(c.numeric_scale, 0), " +
		"c.is_nullable, c.column_default, " +
		"COALESCE(col_description((quote_ident(c.table_schema) || '.' || quote_ident(c.table_name))::regclass, c.ordinal_position), '') " +
		"FROM information_schema.columns c " +
		"WHERE c.table_schema = COALESCE(NULLIF(?, ''), current_schema()) AND UPPER(c.table_name) = UPPER(?) ORDER BY c.ordinal_position",
	indexes: "SELECT i.relname, ix.indisunique::int, a.attname, " +
		"CASE WHEN (ix.indoption[k.ord - 1] & 1) = 1 THEN 1 ELSE 0 END, ix.indisprimary::int " +
		"FROM pg_index ix " +
		"JOIN pg_class t ON t.oid = ix.indrelid " +
		"JOIN pg_class i ON i.oid = ix.indexrelid " +
		"JOIN pg_namespace n ON n.oid = t.relnamespace " +
		"CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) " +
		"JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum " +
		"WHERE n.nspname = COALESCE(NULLIF(?, ''), current_schema()) AND UPPER(t.relname) = UPPER(?) ORDER BY i.relname, k.ord",
	withSchema: true,
}

func newPostgreSQL(variant string) *PostgreSQL {
	types := NewTypeNames(variant).
		Put(meta.ShortText, "TEXT").
		PutCapacity(meta.ShortText, 10485761, "VARCHAR($l)").
		Put(meta.UnicodeShortText, "TEXT").
		PutCapacity(meta.UnicodeShortText, 10485761, "VARCHAR($l)").
		Put(meta.LongText, "TEXT").
		Put(meta.UnicodeLongText, "TEXT").
		Put(meta.Binary, "BYTEA").
		Put(meta.LongBinary, "BYTEA").
		Put(meta.Number, "NUMERIC($l,$s)").
		PutCapacity(meta.Number, 1, "DOUBLE PRECISION").
		Put(meta.Date, "DATE").
		Put(meta.Time, "TIME($s)").
		Put(meta.Timestamp, "TIMESTAMP($s)").
		Put(meta.Boolean, "BOOLEAN")

	d := &PostgreSQL{
		base: base{
			name:             variant,
			types:            types,
			keywords:         keywordSet(sql92Keywords, postgresKeywords),
			quoteOpen:        `"`,
			quoteClose:       `"`,
			bind:             bindDollar,
			pagination:       &LimitOffset{OffsetKeyword: true},
			currentTimestamp: "CURRENT_TIMESTAMP",
			createSequence:   "CREATE SEQUENCE %s START WITH 1 INCREMENT BY 1",
			dropSequence:     "DROP SEQUENCE %s",
			nextVal:          "SELECT nextval('%s')",
			forUpdate:        " FOR UPDATE",
			schemaQuery:      "SELECT current_schema()",
			comments:         commentOn,
			addColumn:        "ALTER TABLE %s ADD COLUMN %s",
			modifyColumn:     modifyPostgresColumn,
			booleanTrue:      "TRUE",
			booleanFalse:     "FALSE",
			introspection:    postgresIntrospection,
		},
	}
	if variant == "postgresql10" {
		// 10 开始支持指定序列的数据类型
		d.createSequence = "CREATE SEQUENCE %s AS BIGINT START WITH 1 INCREMENT BY 1"
	}
	return d
}

func modifyPostgresColumn(b *base, table string, col meta.Column) (string, error) {
	columnType, err := b.ColumnType(col)
	if err != nil {
		return "", err
	}
	nullability := "SET NOT NULL"
	if col.Nullable {
		nullability = "DROP NOT NULL"
	}
	name := b.Quote(col.Name)
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s, ALTER COLUMN %s %s",
		b.Qualify(table), name, columnType, name, nullability), nil
}
