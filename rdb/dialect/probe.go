package dialect

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/rdb"
)

// 产品名，与 Resolver 的方言族匹配时区分大小写
const (
	ProductMySQL      = "MySQL"
	ProductMariaDB    = "MariaDB"
	ProductOracle     = "Oracle"
	ProductPostgreSQL = "PostgreSQL"
	ProductSQLServer  = "Microsoft SQL Server"
	ProductSQLite     = "SQLite"
)

// DatabaseInfo 连接的数据库产品信息
type DatabaseInfo struct {
	ProductName string
	Version     string
	Major       int
	Minor       int
}

type probeQuery struct {
	product string
	query   string
}

// probeQueries 驱动名到版本查询
var probeQueries = map[string]probeQuery{
	"mysql":     {ProductMySQL, "SELECT VERSION()"},
	"postgres":  {ProductPostgreSQL, "SHOW server_version"},
	"pgx":       {ProductPostgreSQL, "SHOW server_version"},
	"sqlite3":   {ProductSQLite, "SELECT sqlite_version()"},
	"sqlite":    {ProductSQLite, "SELECT sqlite_version()"},
	"godror":    {ProductOracle, "SELECT VERSION FROM PRODUCT_COMPONENT_VERSION WHERE PRODUCT LIKE 'Oracle%'"},
	"oracle":    {ProductOracle, "SELECT VERSION FROM PRODUCT_COMPONENT_VERSION WHERE PRODUCT LIKE 'Oracle%'"},
	"oci8":      {ProductOracle, "SELECT VERSION FROM PRODUCT_COMPONENT_VERSION WHERE PRODUCT LIKE 'Oracle%'"},
	"sqlserver": {ProductSQLServer, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS VARCHAR(128))"},
	"mssql":     {ProductSQLServer, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS VARCHAR(128))"},
}

// Probe 查询连接的数据库产品名和版本
// MySQL 驱动连接 MariaDB 时版本串带有 MariaDB 标识
func Probe(ctx context.Context, q Queryer, driverName string) (*DatabaseInfo, error) {
	probe, ok := probeQueries[strings.ToLower(driverName)]
	if !ok {
		return nil, &rdb.UnknownDatabaseError{Product: driverName}
	}

	var version string
	if err := q.QueryRowContext(ctx, probe.query).Scan(&version); err != nil {
		return nil, errors.Wrapf(err, "probe %s version failed", probe.product)
	}

	info := &DatabaseInfo{ProductName: probe.product, Version: strings.TrimSpace(version)}
	if probe.product == ProductMySQL && strings.Contains(strings.ToLower(version), "mariadb") {
		info.ProductName = ProductMariaDB
	}
	info.Major, info.Minor = ParseVersion(info.Version)
	return info, nil
}

// ParseVersion 解析版本串的主次版本号，例如 "8.0.33-log" → 8, 0，"15.3 (Debian)" → 15, 3
func ParseVersion(version string) (major, minor int) {
	version = strings.TrimSpace(version)
	end := 0
	for end < len(version) && (version[end] == '.' || (version[end] >= '0' && version[end] <= '9')) {
		end++
	}
	parts := strings.Split(version[:end], ".")
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major, minor
}
