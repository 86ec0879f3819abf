package schema

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/meta"
)

type ReconcilerOptions struct {
	// DryRun 只生成计划，不执行 DDL
	DryRun bool `cfg:"dryRun"`

	// EnableTracing 每张表一个 span
	EnableTracing bool `cfg:"enableTracing" def:"true"`

	Logger  logger.Logger `cfg:"-"`
	Metrics *Metrics      `cfg:"-"`
}

// TablePlan 一张表的同步计划
type TablePlan struct {
	Table      string
	Create     bool
	Statements []Statement
	// Skipped 方言无法执行的差异，只记录不执行
	Skipped []string
}

// Report 同步结果
type Report struct {
	Plans    []*TablePlan
	Executed int
	DryRun   bool
}

// Statements 全部计划中的语句，按执行顺序
func (r *Report) Statements() []Statement {
	var statements []Statement
	for _, plan := range r.Plans {
		statements = append(statements, plan.Statements...)
	}
	return statements
}

// Reconciler 将线上表结构向声明的元数据收敛
// 只增加列和索引、修改列定义，从不删除线上多出来的列和索引
type Reconciler struct {
	dryRun  bool
	logger  logger.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

func NewReconcilerWithOptions(options *ReconcilerOptions) *Reconciler {
	if options == nil {
		options = &ReconcilerOptions{}
	}
	r := &Reconciler{
		dryRun:  options.DryRun,
		logger:  options.Logger,
		metrics: options.Metrics,
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	r.logger = r.logger.WithGroup("schema")
	if options.EnableTracing {
		r.tracer = otel.Tracer("rdbx.schema")
	}
	return r
}

// Plan 按声明顺序比对每张表，tables 为空时使用注册表中的全部表
func (r *Reconciler) Plan(ctx context.Context, q dialect.Queryer, d dialect.Dialect, registry *meta.Registry, tables []*meta.TableMeta) ([]*TablePlan, error) {
	if len(tables) == 0 && registry != nil {
		tables = registry.Tables()
	}
	plans := make([]*TablePlan, 0, len(tables))
	for _, table := range tables {
		plan, err := r.PlanTable(ctx, q, d, registry, table)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// PlanTable 比对一张表，表不存在时生成完整的建表语句
func (r *Reconciler) PlanTable(ctx context.Context, q dialect.Queryer, d dialect.Dialect, registry *meta.Registry, table *meta.TableMeta) (*TablePlan, error) {
	plan := &TablePlan{Table: table.Name()}

	exists, err := d.ExistTable(ctx, q, table.Name())
	if err != nil {
		return nil, err
	}
	if !exists {
		statements, err := CreateTableStatements(d, registry, table)
		if err != nil {
			return nil, errors.WithMessagef(err, "build create statements for table %s failed", table.Name())
		}
		plan.Create = true
		plan.Statements = statements
		return plan, nil
	}

	live, err := d.TableStruct(ctx, q, table.Name())
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, errors.Errorf("table %s exists but has no columns", table.Name())
	}

	for _, col := range table.Columns(lookupFunc(registry)) {
		field, ok := live.Field(col.Name)
		if !ok {
			sql, err := d.AddColumnSQL(table.Name(), col)
			if err != nil {
				return nil, errors.WithMessagef(err, "build add column %s.%s failed", table.Name(), col.Name)
			}
			plan.Statements = append(plan.Statements, Statement{Kind: KindAddColumn, SQL: sql})
			continue
		}

		diff, err := columnDiff(d, col, field)
		if err != nil {
			return nil, err
		}
		if diff == "" {
			continue
		}
		sql, err := d.ModifyColumnSQL(table.Name(), col)
		var unsupported *rdb.UnsupportedFeatureError
		if errors.As(err, &unsupported) {
			r.logger.WarnContext(ctx, "column differs but dialect cannot modify it",
				"table", table.Name(), "column", col.Name, "diff", diff, "dialect", d.Name())
			plan.Skipped = append(plan.Skipped, col.Name+": "+diff)
			continue
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "build modify column %s.%s failed", table.Name(), col.Name)
		}
		plan.Statements = append(plan.Statements, Statement{Kind: KindModifyColumn, SQL: sql})
	}

	liveKeys := live.IndexKeys()
	for _, idx := range table.Indexes() {
		if liveKeys[idx.CanonicalKey()] {
			continue
		}
		plan.Statements = append(plan.Statements, Statement{Kind: KindCreateIndex, SQL: d.CreateIndexSQL(table.Name(), idx)})
	}
	return plan, nil
}

// Reconcile 逐表比对并执行 DDL
// 一条语句失败立即返回 SchemaReconciliationError，后续的表不再处理
func (r *Reconciler) Reconcile(ctx context.Context, q dialect.Queryer, d dialect.Dialect, registry *meta.Registry, tables []*meta.TableMeta) (*Report, error) {
	if len(tables) == 0 && registry != nil {
		tables = registry.Tables()
	}
	report := &Report{DryRun: r.dryRun}
	for _, table := range tables {
		plan, executed, err := r.reconcileTable(ctx, q, d, registry, table)
		if plan != nil {
			report.Plans = append(report.Plans, plan)
		}
		report.Executed += executed
		if err != nil {
			return report, err
		}
	}
	r.logger.InfoContext(ctx, "schema reconciled",
		"tables", len(tables), "statements", len(report.Statements()), "executed", report.Executed, "dryRun", r.dryRun)
	return report, nil
}

func (r *Reconciler) reconcileTable(ctx context.Context, q dialect.Queryer, d dialect.Dialect, registry *meta.Registry, table *meta.TableMeta) (plan *TablePlan, executed int, err error) {
	start := time.Now()

	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "schema.reconcile",
			trace.WithAttributes(
				attribute.String("table", table.Name()),
				attribute.String("dialect", d.Name()),
			),
		)
		defer func() {
			span.SetAttributes(attribute.Int("statements", executed))
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				span.RecordError(err)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}()
	}
	defer func() {
		r.metrics.observeDuration(table.Name(), time.Since(start).Seconds())
	}()

	plan, err = r.PlanTable(ctx, q, d, registry, table)
	if err != nil {
		return nil, 0, err
	}
	if len(plan.Statements) == 0 {
		r.logger.DebugContext(ctx, "table is up to date", "table", table.Name())
		return plan, 0, nil
	}

	for _, stmt := range plan.Statements {
		if r.dryRun {
			r.logger.InfoContext(ctx, "dry run", "table", table.Name(), "kind", stmt.Kind, "sql", stmt.SQL)
			r.metrics.observeStatement(table.Name(), stmt.Kind, "skipped")
			continue
		}
		if _, err := q.ExecContext(ctx, stmt.SQL); err != nil {
			r.metrics.observeStatement(table.Name(), stmt.Kind, "error")
			r.logger.ErrorContext(ctx, "execute ddl failed", "table", table.Name(), "sql", stmt.SQL, "error", err)
			return plan, executed, &rdb.SchemaReconciliationError{Table: table.Name(), Statement: stmt.SQL, Err: err}
		}
		r.metrics.observeStatement(table.Name(), stmt.Kind, "success")
		executed++
		r.logger.InfoContext(ctx, "execute ddl", "table", table.Name(), "kind", stmt.Kind, "sql", stmt.SQL)
	}
	return plan, executed, nil
}
