package dialect

import (
	"github.com/hatlonely/rdbx/rdb/meta"
)

var mysqlKeywords = []string{
	"ACCESSIBLE", "ANALYZE", "BEFORE", "BIGINT", "BINARY", "BLOB", "BOTH", "CALL", "CASCADE", "CHANGE",
	"CHAR", "CHARACTER", "COLLATE", "CONDITION", "CONTINUE", "CONVERT", "DATABASE", "DATABASES",
	"DAY_HOUR", "DECIMAL", "DECLARE", "DELAYED", "DESCRIBE", "DETERMINISTIC", "DISTINCTROW", "DIV",
	"DOUBLE", "DUAL", "EACH", "ELSEIF", "ENCLOSED", "ESCAPED", "EXIT", "EXPLAIN", "FALSE", "FETCH",
	"FLOAT", "FORCE", "FULLTEXT", "HIGH_PRIORITY", "IF", "IGNORE", "INDEX", "INFILE", "INT", "INTEGER",
	"INTERVAL", "ITERATE", "KEYS", "KILL", "LEADING", "LEAVE", "LIMIT", "LINES", "LOAD", "LOCALTIME",
	"LOCK", "LONG", "LONGBLOB", "LONGTEXT", "LOOP", "MATCH", "MEDIUMINT", "MOD", "NATURAL", "NUMERIC",
	"OPTIMIZE", "OPTION", "OUT", "OUTFILE", "PRECISION", "PROCEDURE", "PURGE", "RANGE", "READ", "REAL",
	"REGEXP", "RELEASE", "RENAME", "REPEAT", "REPLACE", "REQUIRE", "RESTRICT", "RETURN", "REVOKE",
	"RLIKE", "SCHEMA", "SCHEMAS", "SEPARATOR", "SHOW", "SMALLINT", "SPATIAL", "SQL", "STARTING",
	"STRAIGHT_JOIN", "TERMINATED", "TINYINT", "TRAILING", "TRIGGER", "TRUE", "UNDO", "UNLOCK",
	"UNSIGNED", "USAGE", "USE", "USING", "VARCHAR", "WHILE", "WRITE", "XOR", "ZEROFILL",
}

// mysql8Keywords 8.0 新增的保留字
var mysql8Keywords = []string{
	"CUBE", "CUME_DIST", "DENSE_RANK", "EMPTY", "EXCEPT", "FIRST_VALUE", "FUNCTION", "GROUPING",
	"GROUPS", "JSON_TABLE", "LAG", "LAST_VALUE", "LATERAL", "LEAD", "NTH_VALUE", "NTILE", "OF", "OVER",
	"PERCENT_RANK", "RANK", "RECURSIVE", "ROW", "ROWS", "ROW_NUMBER", "SYSTEM", "WINDOW",
}

// MySQL MySQL 系列方言，MariaDB 使用 mysql57
type MySQL struct {
	base
}

var mysqlIntrospection = &introspection{
	existTable: "SELECT COUNT(*) FROM information_schema.TABLES " +
		"WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND UPPER(TABLE_NAME) = UPPER(?) AND TABLE_TYPE = 'BASE TABLE'",
	existView: "SELECT COUNT(*) FROM information_schema.TABLES " +
		"WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND UPPER(TABLE_NAME) = UPPER(?) AND TABLE_TYPE = 'VIEW'",
	fields: "SELECT COLUMN_NAME, DATA_TYPE, COALESCE(CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, 0), COALESCE(NUMERIC_SCALE, 0), " +
		"IS_NULLABLE, COLUMN_DEFAULT, COLUMN_COMMENT FROM information_schema.COLUMNS " +
		"WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND UPPER(TABLE_NAME) = UPPER(?) ORDER BY ORDINAL_POSITION",
	indexes: "SELECT INDEX_NAME, 1 - NON_UNIQUE, COLUMN_NAME, CASE WHEN COLLATION = 'D' THEN 1 ELSE 0 END, " +
		"CASE WHEN INDEX_NAME = 'PRIMARY' THEN 1 ELSE 0 END FROM information_schema.STATISTICS " +
		"WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND UPPER(TABLE_NAME) = UPPER(?) ORDER BY INDEX_NAME, SEQ_IN_INDEX",
	withSchema: true,
}

func newMySQL(variant string) *MySQL {
	types := NewTypeNames(variant).
		Put(meta.ShortText, "LONGTEXT").
		PutCapacity(meta.ShortText, 16384, "VARCHAR($l)").
		Put(meta.UnicodeShortText, "LONGTEXT").
		PutCapacity(meta.UnicodeShortText, 16384, "VARCHAR($l)").
		Put(meta.LongText, "LONGTEXT").
		Put(meta.UnicodeLongText, "LONGTEXT").
		Put(meta.Binary, "LONGBLOB").
		PutCapacity(meta.Binary, 65536, "VARBINARY($l)").
		Put(meta.LongBinary, "LONGBLOB").
		Put(meta.Number, "DECIMAL($l,$s)").
		PutCapacity(meta.Number, 1, "DOUBLE").
		Put(meta.Date, "DATE").
		Put(meta.Time, "TIME").
		Put(meta.Timestamp, "DATETIME").
		Put(meta.Boolean, "TINYINT(1)")

	d := &MySQL{
		base: base{
			name:             variant,
			types:            types,
			keywords:         keywordSet(sql92Keywords, mysqlKeywords),
			quoteOpen:        "`",
			quoteClose:       "`",
			bind:             bindQuestion,
			pagination:       &LimitOffset{},
			currentTimestamp: "CURRENT_TIMESTAMP",
			forUpdate:        " FOR UPDATE",
			schemaQuery:      "SELECT DATABASE()",
			comments:         commentInline,
			tableOptions:     " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
			addColumn:        "ALTER TABLE %s ADD COLUMN %s",
			modifyColumn:     modifyColumnKeyword("ALTER TABLE %s MODIFY COLUMN %s"),
			booleanTrue:      "1",
			booleanFalse:     "0",
			introspection:    mysqlIntrospection,
		},
	}

	switch variant {
	case "mysql4":
		// 4.x VARCHAR 最长 255，没有 InnoDB 默认字符集选项
		d.types.Put(meta.ShortText, "TEXT").
			PutCapacity(meta.ShortText, 16384, "TEXT").
			PutCapacity(meta.ShortText, 256, "VARCHAR($l)").
			Put(meta.UnicodeShortText, "TEXT").
			PutCapacity(meta.UnicodeShortText, 16384, "TEXT").
			PutCapacity(meta.UnicodeShortText, 256, "VARCHAR($l)")
		d.tableOptions = " TYPE=InnoDB"
	case "mysql5":
		d.tableOptions = " ENGINE=InnoDB DEFAULT CHARSET=utf8"
	case "mysql57":
		d.types.Put(meta.Timestamp, "DATETIME($s)").Put(meta.Time, "TIME($s)")
	case "mysql8":
		d.types.Put(meta.Timestamp, "DATETIME($s)").Put(meta.Time, "TIME($s)")
		d.keywords = keywordSet(sql92Keywords, mysqlKeywords, mysql8Keywords)
	}
	return d
}
