package dialect

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb"
)

var constructors = map[string]func(variant string) Dialect{
	"mysql4":        func(v string) Dialect { return newMySQL(v) },
	"mysql5":        func(v string) Dialect { return newMySQL(v) },
	"mysql55":       func(v string) Dialect { return newMySQL(v) },
	"mysql57":       func(v string) Dialect { return newMySQL(v) },
	"mysql8":        func(v string) Dialect { return newMySQL(v) },
	"oracle8i":      func(v string) Dialect { return newOracle(v) },
	"oracle9i":      func(v string) Dialect { return newOracle(v) },
	"oracle10g":     func(v string) Dialect { return newOracle(v) },
	"oracle12c":     func(v string) Dialect { return newOracle(v) },
	"postgresql95":  func(v string) Dialect { return newPostgreSQL(v) },
	"postgresql10":  func(v string) Dialect { return newPostgreSQL(v) },
	"sqlserver2008": func(v string) Dialect { return newSQLServer(v) },
	"sqlserver2012": func(v string) Dialect { return newSQLServer(v) },
	"sqlite":        func(v string) Dialect { return newSQLite(v) },
}

// ByName 按变体名创建方言，每次返回新实例
func ByName(name string) (Dialect, error) {
	newFunc, ok := constructors[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("unknown dialect %q, available: %s", name, strings.Join(Names(), ", "))
	}
	return newFunc(strings.ToLower(name)), nil
}

// Names 全部方言变体名
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// family 方言族：按产品名精确匹配，再按版本选择变体
type family struct {
	product string
	variant func(major, minor int) string
}

var families = []family{
	{ProductMySQL, func(major, minor int) string {
		switch {
		case major < 5:
			return "mysql4"
		case major == 5 && minor < 5:
			return "mysql5"
		case major == 5 && minor < 7:
			return "mysql55"
		case major < 8:
			return "mysql57"
		}
		return "mysql8"
	}},
	{ProductMariaDB, func(major, minor int) string { return "mysql57" }},
	{ProductOracle, func(major, minor int) string {
		switch major {
		case 8:
			return "oracle8i"
		case 9:
			return "oracle9i"
		case 10, 11:
			return "oracle10g"
		}
		return "oracle12c"
	}},
	{ProductPostgreSQL, func(major, minor int) string {
		if major < 10 {
			return "postgresql95"
		}
		return "postgresql10"
	}},
	{ProductSQLServer, func(major, minor int) string {
		if major < 11 {
			return "sqlserver2008"
		}
		return "sqlserver2012"
	}},
	{ProductSQLite, func(major, minor int) string { return "sqlite" }},
}

type ResolverOptions struct {
	Logger logger.Logger
}

// Resolver 根据数据库产品和版本选择方言
type Resolver struct {
	logger logger.Logger
}

func NewResolverWithOptions(options *ResolverOptions) *Resolver {
	r := &Resolver{logger: log.Default()}
	if options != nil && options.Logger != nil {
		r.logger = options.Logger
	}
	return r
}

// ResolveInfo 依次尝试各方言族，第一个产品名匹配的方言族决定变体
func (r *Resolver) ResolveInfo(info *DatabaseInfo) (Dialect, error) {
	for _, f := range families {
		if f.product != info.ProductName {
			continue
		}
		return ByName(f.variant(info.Major, info.Minor))
	}
	return nil, &rdb.UnknownDatabaseError{Product: info.ProductName, Version: info.Version}
}

// Resolve 探测连接的数据库并选择方言，需要时查询一次当前 schema
func (r *Resolver) Resolve(ctx context.Context, q Queryer, driverName string) (Dialect, error) {
	info, err := Probe(ctx, q, driverName)
	if err != nil {
		return nil, err
	}
	d, err := r.ResolveInfo(info)
	if err != nil {
		return nil, err
	}

	if query := d.CurrentSchemaQuery(); query != "" {
		var schema *string
		if err := q.QueryRowContext(ctx, query).Scan(&schema); err != nil {
			return nil, errors.Wrap(err, "query current schema failed")
		}
		if schema != nil {
			d.SetSchema(*schema)
		}
	}

	r.logger.InfoContext(ctx, "dialect resolved",
		"product", info.ProductName, "version", info.Version, "dialect", d.Name(), "schema", d.Schema())
	return d, nil
}
