package dialect

import (
	"github.com/hatlonely/rdbx/rdb/meta"
)

var oracleKeywords = []string{
	"ACCESS", "AUDIT", "CLUSTER", "COMMENT", "COMPRESS", "CONNECT", "DATE", "DECIMAL", "EXCLUSIVE", "FILE",
	"FLOAT", "IDENTIFIED", "IMMEDIATE", "INCREMENT", "INDEX", "INITIAL", "INTEGER", "LEVEL", "LOCK", "LONG",
	"MAXEXTENTS", "MINUS", "MLSLABEL", "MODE", "MODIFY", "NOAUDIT", "NOCOMPRESS", "NOWAIT", "NUMBER", "OF",
	"OFFLINE", "ONLINE", "OPTION", "PCTFREE", "PRIOR", "PRIVILEGES", "PUBLIC", "RAW", "RENAME", "RESOURCE",
	"REVOKE", "ROW", "ROWID", "ROWNUM", "ROWS", "SESSION", "SHARE", "SIZE", "SMALLINT", "START", "SUCCESSFUL",
	"SYNONYM", "SYSDATE", "TRIGGER", "UID", "VALIDATE", "VARCHAR", "VARCHAR2", "WHENEVER",
}

// Oracle Oracle 方言，11g 及以前使用 ROWNUM 分页，12c 使用 OFFSET/FETCH
type Oracle struct {
	base
}

var oracleIntrospection = &introspection{
	existTable: "SELECT COUNT(*) FROM ALL_TABLES " +
		"WHERE OWNER = COALESCE(UPPER(?), SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA')) AND TABLE_NAME = UPPER(?)",
	existView: "SELECT COUNT(*) FROM ALL_VIEWS " +
		"WHERE OWNER = COALESCE(UPPER(?), SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA')) AND VIEW_NAME = UPPER(?)",
	fields: "SELECT c.COLUMN_NAME, c.DATA_TYPE, " +
		"CASE WHEN c.CHAR_LENGTH > 0 THEN c.CHAR_LENGTH ELSE NVL(c.DATA_PRECISION, 0) END, NVL(c.DATA_SCALE, 0), " +
		"c.NULLABLE, c.DATA_DEFAULT, NVL(m.COMMENTS, '') " +
		"FROM ALL_TAB_COLUMNS c LEFT JOIN ALL_COL_COMMENTS m " +
		"ON m.OWNER = c.OWNER AND m.TABLE_NAME = c.TABLE_NAME AND m.COLUMN_NAME = c.COLUMN_NAME " +
		"WHERE c.OWNER = COALESCE(UPPER(?), SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA')) AND c.TABLE_NAME = UPPER(?) ORDER BY c.COLUMN_ID",
	indexes: "SELECT i.INDEX_NAME, CASE WHEN i.UNIQUENESS = 'UNIQUE' THEN 1 ELSE 0 END, c.COLUMN_NAME, " +
		"CASE WHEN c.DESCEND = 'DESC' THEN 1 ELSE 0 END, CASE WHEN k.CONSTRAINT_NAME IS NULL THEN 0 ELSE 1 END " +
		"FROM ALL_INDEXES i JOIN ALL_IND_COLUMNS c ON c.INDEX_OWNER = i.OWNER AND c.INDEX_NAME = i.INDEX_NAME " +
		"LEFT JOIN ALL_CONSTRAINTS k ON k.OWNER = i.TABLE_OWNER AND k.INDEX_NAME = i.INDEX_NAME AND k.CONSTRAINT_TYPE = 'P' " +
		"WHERE i.TABLE_OWNER = COALESCE(UPPER(?), SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA')) AND i.TABLE_NAME = UPPER(?) " +
		"ORDER BY i.INDEX_NAME, c.COLUMN_POSITION",
	withSchema: true,
}

func newOracle(variant string) *Oracle {
	types := NewTypeNames(variant).
		Put(meta.ShortText, "CLOB").
		PutCapacity(meta.ShortText, 4001, "VARCHAR2($l)").
		Put(meta.UnicodeShortText, "NCLOB").
		PutCapacity(meta.UnicodeShortText, 2001, "NVARCHAR2($l)").
		Put(meta.LongText, "CLOB").
		Put(meta.UnicodeLongText, "NCLOB").
		Put(meta.Binary, "BLOB").
		PutCapacity(meta.Binary, 2001, "RAW($l)").
		Put(meta.LongBinary, "BLOB").
		Put(meta.Number, "NUMBER($l,$s)").
		PutCapacity(meta.Number, 1, "NUMBER").
		Put(meta.Date, "DATE").
		Put(meta.Time, "DATE").
		Put(meta.Timestamp, "TIMESTAMP($s)").
		Put(meta.Boolean, "NUMBER(1)")

	d := &Oracle{
		base: base{
			name:              variant,
			types:             types,
			keywords:          keywordSet(sql92Keywords, oracleKeywords),
			quoteOpen:         `"`,
			quoteClose:        `"`,
			bind:              bindColon,
			pagination:        &RowNum{},
			currentTimestamp:  "SELECT SYSTIMESTAMP FROM DUAL",
			timestampFunction: true,
			timestampDefault:  "SYSTIMESTAMP",
			createSequence:    "CREATE SEQUENCE %s START WITH 1 INCREMENT BY 1",
			dropSequence:      "DROP SEQUENCE %s",
			nextVal:           "SELECT %s.NEXTVAL FROM DUAL",
			forUpdate:         " FOR UPDATE",
			schemaQuery:       "SELECT SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA') FROM DUAL",
			comments:          commentOn,
			addColumn:         "ALTER TABLE %s ADD (%s)",
			modifyColumn:      modifyColumnKeyword("ALTER TABLE %s MODIFY (%s)"),
			booleanTrue:       "1",
			booleanFalse:      "0",
			introspection:     oracleIntrospection,
		},
	}

	switch variant {
	case "oracle8i":
		// 8i 没有 TIMESTAMP 类型
		d.types.Put(meta.Timestamp, "DATE")
		d.currentTimestamp = "SELECT SYSDATE FROM DUAL"
		d.timestampDefault = "SYSDATE"
	case "oracle12c":
		d.pagination = &OffsetFetch{}
	}
	return d
}
