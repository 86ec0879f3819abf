package dialect

import (
	"github.com/hatlonely/rdbx/rdb/meta"
)

var sqliteKeywords = []string{
	"ABORT", "ACTION", "AFTER", "ANALYZE", "ATTACH", "AUTOINCREMENT", "BEFORE", "BEGIN", "CASCADE",
	"COLLATE", "COMMIT", "CONFLICT", "DATABASE", "DEFERRABLE", "DEFERRED", "DETACH", "EACH", "ESCAPE",
	"EXCEPT", "EXCLUSIVE", "EXPLAIN", "FAIL", "GLOB", "IF", "IGNORE", "IMMEDIATE", "INDEX", "INDEXED",
	"INITIALLY", "INSTEAD", "ISNULL", "LIMIT", "MATCH", "NATURAL", "NO", "NOTNULL", "OF", "OFFSET",
	"PLAN", "PRAGMA", "QUERY", "RAISE", "RECURSIVE", "REGEXP", "REINDEX", "RELEASE", "RENAME",
	"REPLACE", "RESTRICT", "ROLLBACK", "ROW", "SAVEPOINT", "TEMP", "TEMPORARY", "TRANSACTION",
	"TRIGGER", "VACUUM", "VIRTUAL", "WITHOUT",
}

// SQLite SQLite 方言，不支持序列和修改列
type SQLite struct {
	base
}

var sqliteIntrospection = &introspection{
	existTable: "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND UPPER(name) = UPPER(?)",
	existView:  "SELECT COUNT(*) FROM sqlite_master WHERE type = 'view' AND UPPER(name) = UPPER(?)",
	fields: "SELECT p.name, p.type, 0, 0, CASE WHEN p.\"notnull\" = 0 THEN 'YES' ELSE 'NO' END, p.dflt_value, '' " +
		"FROM (SELECT ? AS n) t, pragma_table_info(t.n) p ORDER BY p.cid",
	indexes: "WITH t(n) AS (SELECT ?) SELECT INDEX_NAME, IS_UNIQUE, COLUMN_NAME, IS_DESC, IS_PRIMARY FROM (" +
		"SELECT 'PRIMARY' AS INDEX_NAME, 1 AS IS_UNIQUE, p.name AS COLUMN_NAME, 0 AS IS_DESC, 1 AS IS_PRIMARY, p.pk AS SEQ " +
		"FROM t, pragma_table_info(t.n) p WHERE p.pk > 0 " +
		"UNION ALL " +
		"SELECT l.name, l.\"unique\", x.name, x.\"desc\", 0, x.seqno " +
		"FROM t, pragma_index_list(t.n) l, pragma_index_xinfo(l.name) x " +
		"WHERE l.origin <> 'pk' AND x.key = 1 AND x.name IS NOT NULL" +
		") ORDER BY INDEX_NAME, SEQ",
}

func newSQLite(variant string) *SQLite {
	types := NewTypeNames(variant).
		Put(meta.ShortText, "TEXT").
		PutCapacity(meta.ShortText, 1000000001, "VARCHAR($l)").
		Put(meta.UnicodeShortText, "TEXT").
		PutCapacity(meta.UnicodeShortText, 1000000001, "NVARCHAR($l)").
		Put(meta.LongText, "TEXT").
		Put(meta.UnicodeLongText, "TEXT").
		Put(meta.Binary, "BLOB").
		Put(meta.LongBinary, "BLOB").
		Put(meta.Number, "NUMERIC($l,$s)").
		PutCapacity(meta.Number, 1, "REAL").
		Put(meta.Date, "DATE").
		Put(meta.Time, "TIME").
		Put(meta.Timestamp, "TIMESTAMP").
		Put(meta.Boolean, "BOOLEAN")

	return &SQLite{
		base: base{
			name:             variant,
			types:            types,
			keywords:         keywordSet(sql92Keywords, sqliteKeywords),
			quoteOpen:        `"`,
			quoteClose:       `"`,
			bind:             bindQuestion,
			pagination:       &LimitOffset{OffsetKeyword: true},
			currentTimestamp: "CURRENT_TIMESTAMP",
			addColumn:        "ALTER TABLE %s ADD COLUMN %s",
			booleanTrue:      "1",
			booleanFalse:     "0",
			introspection:    sqliteIntrospection,
		},
	}
}
