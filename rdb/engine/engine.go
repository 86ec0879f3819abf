package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/cfg"
	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/cache"
	"github.com/hatlonely/rdbx/rdb/datasource"
	"github.com/hatlonely/rdbx/rdb/datatable"
	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/meta"
	"github.com/hatlonely/rdbx/rdb/query"
	"github.com/hatlonely/rdbx/rdb/schema"
	"github.com/hatlonely/rdbx/rdb/sqlcheck"
	"github.com/hatlonely/rdbx/ref"
	"github.com/hatlonely/rdbx/uid"
)

type SchemaOptions struct {
	// Generate 启动时把声明的表同步到数据库
	Generate      bool `cfg:"generate"`
	DryRun        bool `cfg:"dryRun"`
	EnableTracing bool `cfg:"enableTracing" def:"true"`
}

type TablesOptions struct {
	// Dirs 表声明文档所在的目录
	Dirs []string `cfg:"dirs"`
	// PassThrough 查询检查时跳过的伪表
	PassThrough []string `cfg:"passThrough" def:"DUAL,SQLITE_MASTER"`
}

type Options struct {
	DataSource   datasource.Options `cfg:"datasource"`
	SystemFields meta.SystemFields  `cfg:"systemFields"`
	Schema       SchemaOptions      `cfg:"schema"`
	Tables       TablesOptions      `cfg:"tables"`
	// Cache 为空时不缓存，声明了 cache 的表也直接查库
	Cache *cache.TableCacheOptions `cfg:"cache"`
	// IntGenerator / StrGenerator 主键生成器，为空时使用 snowflake 和 uuid
	IntGenerator *ref.TypeOptions    `cfg:"intGenerator"`
	StrGenerator *ref.TypeOptions    `cfg:"strGenerator"`
	Log          *logger.SLogOptions `cfg:"log"`

	Logger        logger.Logger   `cfg:"-"`
	SchemaMetrics *schema.Metrics `cfg:"-"`
	CacheMetrics  *cache.Metrics  `cfg:"-"`
}

// Engine 一个数据源上的全部组件：方言、表元数据、结构同步、查询检查和缓存
// 创建完成后只读，可以并发使用
type Engine struct {
	ds         *datasource.DataSource
	dialect    dialect.Dialect
	registry   *meta.Registry
	reconciler *schema.Reconciler
	validator  *sqlcheck.Validator
	cache      *cache.TableCache
	intGen     uid.IntGenerator
	strGen     uid.StrGenerator
	report     *schema.Report
	logger     logger.Logger

	closeOnce sync.Once
}

// NewEngineWithConfig 从配置创建，配置同时作为条件声明的属性来源
func NewEngineWithConfig(ctx context.Context, c *cfg.Config, decls ...any) (*Engine, error) {
	var options Options
	if err := c.ConvertTo(&options); err != nil {
		return nil, errors.WithMessage(err, "convert engine options failed")
	}
	return NewEngineWithOptions(ctx, &options, c, decls...)
}

// NewEngineWithOptions 打开数据源后创建，Close 时关闭数据源
func NewEngineWithOptions(ctx context.Context, options *Options, properties meta.PropertySource, decls ...any) (*Engine, error) {
	if options == nil {
		return nil, rdb.NewConfigurationError("engine", "", "engine options is nil")
	}
	ds, err := datasource.Open(ctx, &options.DataSource)
	if err != nil {
		return nil, err
	}
	e, err := NewEngine(ctx, ds, options, properties, decls...)
	if err != nil {
		_ = ds.Close()
		return nil, err
	}
	return e, nil
}

// NewEngine 使用已有的数据源，依次：选择方言、解析表声明、同步结构（schema.generate）、创建查询检查和缓存
// decls 为带 meta.Table 标记的结构体，与 tables.dirs 下的文档一起注册
func NewEngine(ctx context.Context, ds *datasource.DataSource, options *Options, properties meta.PropertySource, decls ...any) (*Engine, error) {
	if options == nil {
		options = &Options{}
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, err
	}
	e := &Engine{ds: ds, registry: meta.NewRegistry(), logger: options.Logger}
	if e.logger == nil && options.Log != nil {
		l, err := logger.NewSLogWithOptions(options.Log)
		if err != nil {
			return nil, errors.WithMessage(err, "create logger failed")
		}
		e.logger = l
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	e.logger = e.logger.With("driver", ds.Driver())

	d, err := dialect.NewResolverWithOptions(&dialect.ResolverOptions{Logger: e.logger}).Resolve(ctx, ds, ds.Driver())
	if err != nil {
		return nil, err
	}
	e.dialect = d

	settings := &options.SystemFields
	documents, err := meta.LoadDocuments(options.Tables.Dirs...)
	if err != nil {
		return nil, err
	}
	tables, err := meta.ParseAll(ctx, e.registry,
		meta.NewTagParser(settings, properties, decls...),
		meta.NewDocumentParser(settings, properties, documents...),
	)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "tables registered", "count", len(tables), "documents", len(documents))

	e.reconciler = schema.NewReconcilerWithOptions(&schema.ReconcilerOptions{
		DryRun:        options.Schema.DryRun,
		EnableTracing: options.Schema.EnableTracing,
		Logger:        e.logger,
		Metrics:       options.SchemaMetrics,
	})
	if options.Schema.Generate {
		report, err := e.reconciler.Reconcile(ctx, ds, d, e.registry, nil)
		if err != nil {
			return nil, err
		}
		e.report = report
	}

	e.validator = sqlcheck.NewValidatorWithOptions(e.registry, d, &sqlcheck.ValidatorOptions{
		PassThrough: options.Tables.PassThrough,
		Logger:      e.logger,
	})

	if options.Cache != nil {
		cacheOptions := *options.Cache
		cacheOptions.Logger = e.logger
		cacheOptions.Metrics = options.CacheMetrics
		if e.cache, err = cache.NewTableCacheWithOptions(&cacheOptions); err != nil {
			return nil, errors.WithMessage(err, "create table cache failed")
		}
	}

	// 同一个引擎创建的数据表共用生成器，避免同一毫秒内生成重复的主键
	if e.intGen, err = uid.NewIntGeneratorWithOptions(options.IntGenerator); err != nil {
		return nil, err
	}
	if e.strGen, err = uid.NewStrGeneratorWithOptions(options.StrGenerator); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) DataSource() *datasource.DataSource { return e.ds }
func (e *Engine) Dialect() dialect.Dialect           { return e.dialect }
func (e *Engine) Registry() *meta.Registry           { return e.registry }

// Report 启动时同步结构的结果，没有开启 schema.generate 时为 nil
func (e *Engine) Report() *schema.Report { return e.report }

// Plan 只比对不执行
func (e *Engine) Plan(ctx context.Context, tables ...*meta.TableMeta) ([]*schema.TablePlan, error) {
	return e.reconciler.Plan(ctx, e.ds, e.dialect, e.registry, tables)
}

// Reconcile 手动同步，tables 为空时同步全部表
func (e *Engine) Reconcile(ctx context.Context, tables ...*meta.TableMeta) (*schema.Report, error) {
	return e.reconciler.Reconcile(ctx, e.ds, e.dialect, e.registry, tables)
}

// Validate 检查查询引用的表并返回改写后的语句
func (e *Engine) Validate(ctx context.Context, sql string) (string, error) {
	return e.validator.Validate(ctx, e.ds, sql)
}

func (e *Engine) Check(ctx context.Context, sql string) (*sqlcheck.Result, error) {
	return e.validator.Check(ctx, e.ds, sql)
}

// DataTable 按表名或别名创建一个空的数据表
func (e *Engine) DataTable(name string) (*datatable.DataTable, error) {
	table, ok := e.registry.Lookup(name)
	if !ok {
		return nil, &rdb.UnknownRelationError{Name: name}
	}
	options := &datatable.DataTableOptions{
		Registry:     e.registry,
		IntGenerator: e.intGen,
		StrGenerator: e.strGen,
		Logger:       e.logger,
	}
	if e.cache != nil {
		options.Cache = e.cache
	}
	return datatable.NewDataTable(table, options)
}

// Load 按条件读取一页
func (e *Engine) Load(ctx context.Context, name string, where string, args []any, start, count int64) (*datatable.DataTable, error) {
	t, err := e.DataTable(name)
	if err != nil {
		return nil, err
	}
	if _, err := t.Load(ctx, e.ds, e.dialect, where, args, start, count); err != nil {
		return nil, err
	}
	return t, nil
}

// Find 按条件树读取一页数据，q 为 nil 时读取全部未删除的行
func (e *Engine) Find(ctx context.Context, name string, q query.Query, start, count int64) (*datatable.DataTable, error) {
	t, err := e.DataTable(name)
	if err != nil {
		return nil, err
	}
	where, args, err := query.Build(query.NewResolver(t.Table(), e.dialect), q)
	if err != nil {
		return nil, errors.WithMessagef(err, "build condition for table %s failed", t.Table().Name())
	}
	if _, err := t.Load(ctx, e.ds, e.dialect, where, args, start, count); err != nil {
		return nil, err
	}
	return t, nil
}

// Save 保存数据表中新增和修改的行
func (e *Engine) Save(ctx context.Context, t *datatable.DataTable) (*datatable.SaveResult, error) {
	return t.Save(ctx, e.ds, e.dialect)
}

// Get 按主键读取一行，找不到时返回 nil
func (e *Engine) Get(ctx context.Context, name string, key any) (*datatable.RowLineSet, error) {
	t, err := e.DataTable(name)
	if err != nil {
		return nil, err
	}
	return t.Get(ctx, e.ds, e.dialect, key)
}

func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.cache != nil {
			err = e.cache.Close()
		}
		if closeErr := e.ds.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
