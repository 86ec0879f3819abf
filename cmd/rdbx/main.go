// Command rdbx 声明式表结构的命令行工具：探测数据库、生成建表语句、同步结构、检查查询
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/cfg"
	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb/datasource"
	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/engine"
	"github.com/hatlonely/rdbx/rdb/meta"
	"github.com/hatlonely/rdbx/rdb/schema"
)

type Globals struct {
	Config    string            `short:"c" help:"配置文件，yaml/json/toml/ini" type:"path"`
	EnvPrefix string            `default:"RDBX" help:"环境变量前缀，RDBX_DATASOURCE_DSN 覆盖 datasource.dsn"`
	Set       map[string]string `short:"s" help:"覆盖配置项，例如 -s datasource.driver=sqlite"`
	LogLevel  string            `default:"warn" enum:"debug,info,warn,error" help:"日志级别"`
}

type CLI struct {
	Globals

	Probe     ProbeCmd     `cmd:"" help:"探测数据库产品、版本和方言"`
	DDL       DDLCmd       `cmd:"" name:"ddl" help:"离线生成建表语句"`
	Reconcile ReconcileCmd `cmd:"" help:"把声明的表同步到数据库"`
	Check     CheckCmd     `cmd:"" help:"检查查询引用的表并输出改写后的语句"`
}

// load 读取配置文件、环境变量和 -s 覆盖项
func (g *Globals) load() (*cfg.Config, error) {
	c, err := cfg.NewConfigWithOptions(&cfg.Options{File: g.Config, EnvPrefix: g.EnvPrefix})
	if err != nil {
		return nil, err
	}
	for key, value := range g.Set {
		if err := c.Set(key, value); err != nil {
			return nil, errors.WithMessagef(err, "set %s failed", key)
		}
	}
	return c, nil
}

func (g *Globals) engine(ctx context.Context) (*engine.Engine, error) {
	c, err := g.load()
	if err != nil {
		return nil, err
	}
	// 命令行自己决定是否执行 DDL
	if err := c.Set("schema.generate", false); err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(ctx, c)
}

type ProbeCmd struct{}

func (cmd *ProbeCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	c, err := g.load()
	if err != nil {
		return err
	}
	var options datasource.Options
	if err := c.Sub("datasource").ConvertTo(&options); err != nil {
		return err
	}
	ds, err := datasource.Open(ctx, &options)
	if err != nil {
		return err
	}
	defer ds.Close()

	info, err := dialect.Probe(ctx, ds, ds.Driver())
	if err != nil {
		return err
	}
	d, err := dialect.NewResolverWithOptions(nil).Resolve(ctx, ds, ds.Driver())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "product: %s\nversion: %s\ndialect: %s\n", info.ProductName, info.Version, d.Name())
	if d.Schema() != "" {
		fmt.Fprintf(out, "schema: %s\n", d.Schema())
	}
	return nil
}

type DDLCmd struct {
	Dialect string   `required:"" short:"d" help:"方言，例如 mysql57、postgresql10、oracle12c、sqlite"`
	Tables  []string `arg:"" type:"existingdir" help:"表声明文档所在的目录"`
	Schema  string   `help:"表名前加的 schema"`
}

func (cmd *DDLCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	d, err := dialect.ByName(cmd.Dialect)
	if err != nil {
		return err
	}
	d.SetSchema(cmd.Schema)

	c, err := g.load()
	if err != nil {
		return err
	}
	settings := meta.DefaultSystemFields()
	if err := c.Sub("systemFields").ConvertTo(settings); err != nil {
		return err
	}
	documents, err := meta.LoadDocuments(cmd.Tables...)
	if err != nil {
		return err
	}
	registry := meta.NewRegistry()
	tables, err := meta.ParseAll(ctx, registry, meta.NewDocumentParser(settings, c, documents...))
	if err != nil {
		return err
	}
	for _, table := range tables {
		statements, err := schema.CreateTableStatements(d, registry, table)
		if err != nil {
			return err
		}
		writeStatements(out, statements)
	}
	return nil
}

type ReconcileCmd struct {
	DryRun bool `help:"只输出计划，不执行"`
}

func (cmd *ReconcileCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	e, err := g.engine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if cmd.DryRun {
		plans, err := e.Plan(ctx)
		if err != nil {
			return err
		}
		for _, plan := range plans {
			writeStatements(out, plan.Statements)
			for _, skipped := range plan.Skipped {
				fmt.Fprintf(out, "-- skipped %s.%s\n", plan.Table, skipped)
			}
		}
		return nil
	}

	report, err := e.Reconcile(ctx)
	if report != nil {
		writeStatements(out, report.Statements()[:report.Executed])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "-- %d statements executed\n", report.Executed)
	return nil
}

type CheckCmd struct {
	SQL []string `arg:"" help:"待检查的语句"`
}

func (cmd *CheckCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	e, err := g.engine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.Check(ctx, strings.Join(cmd.SQL, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, result.SQL)
	fmt.Fprintf(out, "-- tables: %s\n", strings.Join(result.Tables, ", "))
	return nil
}

func writeStatements(out io.Writer, statements []schema.Statement) {
	for _, stmt := range statements {
		fmt.Fprintf(out, "%s;\n", stmt.SQL)
	}
}

func newParser(cli *CLI, out io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("rdbx"),
		kong.Description("声明式表结构工具"),
		kong.UsageOnError(),
		kong.Writers(out, os.Stderr),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
}

// run 解析参数并执行子命令，测试直接调用
func run(ctx context.Context, args []string, out io.Writer) error {
	var cli CLI
	parser, err := newParser(&cli, out)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: cli.LogLevel, Format: "text"})
	if err != nil {
		return err
	}
	log.SetDefault(l)

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.BindTo(out, (*io.Writer)(nil))
	return kctx.Run(&cli.Globals)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "rdbx:", err)
		os.Exit(1)
	}
}
