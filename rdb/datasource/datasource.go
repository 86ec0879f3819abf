package datasource

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/hatlonely/rdbx/rdb"
)

// 支持的驱动名，与 database/sql 注册的名字一致
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
)

type Options struct {
	// Driver mysql、postgres（lib/pq）、pgx、sqlite3（cgo）、sqlite（纯 go）
	Driver string `cfg:"driver" def:"mysql" validate:"oneof=mysql postgres pgx sqlite3 sqlite"`
	// DSN 不为空时忽略 Host 等字段
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	SSLMode  string `cfg:"sslMode" def:"disable"`

	MaxOpenConns    int           `cfg:"maxOpenConns" def:"10"`
	MaxIdleConns    int           `cfg:"maxIdleConns" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"1h"`
	PingTimeout     time.Duration `cfg:"pingTimeout" def:"5s"`
}

// DataSource 连接和驱动名，驱动名用于探测数据库版本
// 连接池和事务由 *sql.DB 负责
type DataSource struct {
	db     *sql.DB
	driver string
	closer func() error
}

// New 包装已有的连接，由调用方负责关闭
func New(db *sql.DB, driver string) *DataSource {
	return &DataSource{db: db, driver: strings.ToLower(driver)}
}

// Open 按驱动打开连接并 ping 一次
func Open(ctx context.Context, options *Options) (*DataSource, error) {
	if options == nil {
		return nil, rdb.NewConfigurationError("datasource", "", "datasource options is nil")
	}
	db, err := open(options)
	if err != nil {
		return nil, err
	}

	if options.MaxOpenConns > 0 {
		db.SetMaxOpenConns(options.MaxOpenConns)
	}
	if options.MaxIdleConns > 0 {
		db.SetMaxIdleConns(options.MaxIdleConns)
	}
	if options.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(options.ConnMaxLifetime)
	}

	pingCtx := ctx
	if options.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, options.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s failed", options.Driver)
	}

	return &DataSource{db: db, driver: options.Driver, closer: db.Close}, nil
}

func open(options *Options) (*sql.DB, error) {
	switch options.Driver {
	case DriverMySQL:
		cfg, err := MySQLConfig(options)
		if err != nil {
			return nil, err
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "create mysql connector failed")
		}
		return sql.OpenDB(connector), nil
	case DriverPostgres:
		connector, err := pq.NewConnector(PostgresDSN(options))
		if err != nil {
			return nil, errors.Wrap(err, "create postgres connector failed")
		}
		return sql.OpenDB(connector), nil
	case DriverPgx:
		cfg, err := pgx.ParseConfig(PostgresDSN(options))
		if err != nil {
			return nil, errors.Wrap(err, "parse pgx config failed")
		}
		return stdlib.OpenDB(*cfg), nil
	case DriverSQLite3, DriverSQLite:
		dsn := options.DSN
		if dsn == "" {
			dsn = options.Database
		}
		if dsn == "" {
			return nil, rdb.NewConfigurationError("datasource", "", "sqlite database file is required")
		}
		db, err := sql.Open(options.Driver, dsn)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s failed", options.Driver)
		}
		return db, nil
	}
	return nil, rdb.NewConfigurationError("datasource", "", "unsupported driver %s", options.Driver)
}

// MySQLConfig DSN 为空时由 Host 等字段拼出连接配置，时间列解析为 time.Time
func MySQLConfig(options *Options) (*mysql.Config, error) {
	if options.DSN != "" {
		cfg, err := mysql.ParseDSN(options.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "parse mysql dsn failed")
		}
		return cfg, nil
	}
	port := options.Port
	if port == "" {
		port = "3306"
	}
	cfg := mysql.NewConfig()
	cfg.User = options.Username
	cfg.Passwd = options.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(options.Host, port)
	cfg.DBName = options.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	if options.Charset != "" {
		cfg.Params = map[string]string{"charset": options.Charset}
	}
	return cfg, nil
}

// PostgresDSN lib/pq 和 pgx 共用的 URL 形式连接串
func PostgresDSN(options *Options) string {
	if options.DSN != "" {
		return options.DSN
	}
	port := options.Port
	if port == "" {
		port = "5432"
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(options.Host, port),
		Path:   "/" + options.Database,
	}
	if options.Username != "" {
		u.User = url.UserPassword(options.Username, options.Password)
	}
	if options.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{options.SSLMode}}.Encode()
	}
	return u.String()
}

func (s *DataSource) DB() *sql.DB {
	return s.db
}

func (s *DataSource) Driver() string {
	return s.driver
}

func (s *DataSource) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *DataSource) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *DataSource) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Close 只关闭由 Open 打开的连接
func (s *DataSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
