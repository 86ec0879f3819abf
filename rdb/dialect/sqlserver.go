package dialect

import (
	"fmt"

	"github.com/hatlonely/rdbx/rdb/meta"
)

var sqlserverKeywords = []string{
	"BACKUP", "BREAK", "BROWSE", "BULK", "CASCADE", "CHECKPOINT", "CLOSE", "CLUSTERED", "COALESCE",
	"COMPUTE", "CONTAINS", "CONTAINSTABLE", "CONTINUE", "CONVERT", "CURSOR", "DATABASE", "DBCC",
	"DEALLOCATE", "DECLARE", "DENY", "DISK", "DISTRIBUTED", "DOUBLE", "DUMP", "ERRLVL", "ESCAPE",
	"EXCEPT", "EXEC", "EXECUTE", "EXIT", "FETCH", "FILE", "FILLFACTOR", "FREETEXT", "FUNCTION", "GOTO",
	"HOLDLOCK", "IDENTITY", "IDENTITYCOL", "IF", "INDEX", "KILL", "LINENO", "LOAD", "MERGE", "NATIONAL",
	"NOCHECK", "NONCLUSTERED", "OF", "OFF", "OFFSETS", "OPEN", "OPTION", "OVER", "PERCENT", "PIVOT",
	"PLAN", "PRECISION", "PRINT", "PROC", "PROCEDURE", "PUBLIC", "RAISERROR", "READ", "READTEXT",
	"RECONFIGURE", "REPLICATION", "RESTORE", "RESTRICT", "RETURN", "REVERT", "REVOKE", "ROWCOUNT",
	"ROWGUIDCOL", "RULE", "SAVE", "SCHEMA", "SESSION_USER", "SETUSER", "SHUTDOWN", "SOME",
	"STATISTICS", "SYSTEM_USER", "TABLESAMPLE", "TEXTSIZE", "TOP", "TRAN", "TRANSACTION", "TRIGGER",
	"TRUNCATE", "TSEQUAL", "UNPIVOT", "UPDATETEXT", "USE", "VARYING", "WAITFOR", "WHILE", "WRITETEXT",
}

// SQLServer Microsoft SQL Server 方言，2008 使用 TOP/ROW_NUMBER 分页，2012 开始支持序列和 OFFSET/FETCH
type SQLServer struct {
	base
}

var sqlserverIntrospection = &introspection{
	existTable: "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES " +
		"WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), SCHEMA_NAME()) AND UPPER(TABLE_NAME) = UPPER(?) AND TABLE_TYPE = 'BASE TABLE'",
	existView: "SELECT COUNT(*) FROM INFORMATION_SCHEMA.VIEWS " +
		"WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), SCHEMA_NAME()) AND UPPER(TABLE_NAME) = UPPER(?)",
	fields: "SELECT c.COLUMN_NAME, c.DATA_TYPE, COALESCE(c.CHARACTER_MAXIMUM_LENGTH, c.NUMERIC_PRECISION, 0), COALESCE(c.NUMERIC_SCALE, 0), " +
		"c.IS_NULLABLE, c.COLUMN_DEFAULT, CAST(COALESCE(p.value, '') AS NVARCHAR(4000)) " +
		"FROM INFORMATION_SCHEMA.COLUMNS c " +
		"LEFT JOIN sys.extended_properties p ON p.major_id = OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)) " +
		"AND p.minor_id = COLUMNPROPERTY(p.major_id, c.COLUMN_NAME, 'ColumnId') AND p.name = 'MS_Description' " +
		"WHERE c.TABLE_SCHEMA = COALESCE(NULLIF(?, ''), SCHEMA_NAME()) AND UPPER(c.TABLE_NAME) = UPPER(?) ORDER BY c.ORDINAL_POSITION",
	indexes: "SELECT i.name, CAST(i.is_unique AS INT), c.name, CAST(ic.is_descending_key AS INT), CAST(i.is_primary_key AS INT) " +
		"FROM sys.indexes i " +
		"JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id " +
		"JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id " +
		"JOIN sys.tables t ON t.object_id = i.object_id " +
		"WHERE SCHEMA_NAME(t.schema_id) = COALESCE(NULLIF(?, ''), SCHEMA_NAME()) AND UPPER(t.name) = UPPER(?) " +
		"AND ic.is_included_column = 0 ORDER BY i.name, ic.key_ordinal",
	withSchema: true,
}

func newSQLServer(variant string) *SQLServer {
	types := NewTypeNames(variant).
		Put(meta.ShortText, "VARCHAR(MAX)").
		PutCapacity(meta.ShortText, 8001, "VARCHAR($l)").
		Put(meta.UnicodeShortText, "NVARCHAR(MAX)").
		PutCapacity(meta.UnicodeShortText, 4001, "NVARCHAR($l)").
		Put(meta.LongText, "VARCHAR(MAX)").
		Put(meta.UnicodeLongText, "NVARCHAR(MAX)").
		Put(meta.Binary, "VARBINARY(MAX)").
		PutCapacity(meta.Binary, 8001, "VARBINARY($l)").
		Put(meta.LongBinary, "VARBINARY(MAX)").
		Put(meta.Number, "NUMERIC($l,$s)").
		PutCapacity(meta.Number, 1, "FLOAT").
		Put(meta.Date, "DATE").
		Put(meta.Time, "TIME($s)").
		Put(meta.Timestamp, "DATETIME2($s)").
		Put(meta.Boolean, "BIT")

	d := &SQLServer{
		base: base{
			name:             variant,
			types:            types,
			keywords:         keywordSet(sql92Keywords, sqlserverKeywords),
			quoteOpen:        "[",
			quoteClose:       "]",
			bind:             bindAt,
			pagination:       &TopRowNumber{},
			currentTimestamp: "CURRENT_TIMESTAMP",
			schemaQuery:      "SELECT SCHEMA_NAME()",
			addColumn:        "ALTER TABLE %s ADD %s",
			modifyColumn:     modifySQLServerColumn,
			booleanTrue:      "1",
			booleanFalse:     "0",
			introspection:    sqlserverIntrospection,
		},
	}
	if variant == "sqlserver2012" {
		d.pagination = &OffsetFetch{RequireOrderBy: true}
		d.createSequence = "CREATE SEQUENCE %s AS BIGINT START WITH 1 INCREMENT BY 1"
		d.dropSequence = "DROP SEQUENCE %s"
		d.nextVal = "SELECT NEXT VALUE FOR %s"
	}
	return d
}

// modifySQLServerColumn ALTER COLUMN 不接受 DEFAULT 子句
func modifySQLServerColumn(b *base, table string, col meta.Column) (string, error) {
	columnType, err := b.ColumnType(col)
	if err != nil {
		return "", err
	}
	nullability := "NOT NULL"
	if col.Nullable {
		nullability = "NULL"
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s %s", b.Qualify(table), b.Quote(col.Name), columnType, nullability), nil
}
