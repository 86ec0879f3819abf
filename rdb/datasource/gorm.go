package datasource

import (
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hatlonely/rdbx/rdb"
)

// OpenGorm 用同样的选项打开 gorm 连接，只支持 mysql 和 sqlite3
// 已有 gorm 模型的应用可以和本库共用一个连接池
func OpenGorm(options *Options) (*gorm.DB, error) {
	if options == nil {
		return nil, rdb.NewConfigurationError("datasource", "", "datasource options is nil")
	}
	config := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var dialector gorm.Dialector
	switch options.Driver {
	case DriverMySQL:
		cfg, err := MySQLConfig(options)
		if err != nil {
			return nil, err
		}
		dialector = gormmysql.Open(cfg.FormatDSN())
	case DriverSQLite3:
		dsn := options.DSN
		if dsn == "" {
			dsn = options.Database
		}
		dialector = gormsqlite.Open(dsn)
	default:
		return nil, rdb.NewConfigurationError("datasource", "", "gorm does not support driver %s", options.Driver)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, errors.Wrapf(err, "open gorm %s failed", options.Driver)
	}
	return db, nil
}

// gormDrivers gorm 方言名到 database/sql 驱动名
var gormDrivers = map[string]string{
	"mysql":    DriverMySQL,
	"sqlite":   DriverSQLite3,
	"postgres": DriverPgx,
}

// FromGorm 复用 gorm 的连接池，关闭由 gorm 的持有者负责
func FromGorm(db *gorm.DB) (*DataSource, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db from gorm failed")
	}
	name := db.Dialector.Name()
	driver, ok := gormDrivers[name]
	if !ok {
		return nil, rdb.NewConfigurationError("datasource", "", "unsupported gorm dialector %s", name)
	}
	return New(sqlDB, driver), nil
}
