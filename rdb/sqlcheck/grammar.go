package sqlcheck

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// 语法只关心表引用出现的位置：FROM、JOIN、子查询、集合运算分支、CTE，
// 表达式按 token 整体跳过，括号内以 SELECT/WITH 开头的部分作为子查询解析

var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*|/\*(?s:.*?)\*/`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"|` + "`[^`]*`" + `|\[[^\]]*\]`},
	{Name: "Keyword", Pattern: `(?i)\b(?:SELECT|FROM|WHERE|GROUP|HAVING|ORDER|LIMIT|OFFSET|FETCH|FOR|UNION|INTERSECT|EXCEPT|MINUS|` +
		`JOIN|INNER|LEFT|RIGHT|FULL|OUTER|CROSS|NATURAL|APPLY|ON|USING|AS|WITH|RECURSIVE|LATERAL|VALUES|WINDOW|QUALIFY|` +
		`INSERT|INTO|UPDATE|DELETE|SET|RETURNING|DEFAULT)\b`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_$#]*`},
	{Name: "Number", Pattern: `(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?`},
	{Name: "Operator", Pattern: `::|<>|<=|>=|!=|\|\||->>|->|[-+*/%=<>!~^&|.,;()]`},
	{Name: "Param", Pattern: `\?|\$\d+|[:@]\w+`},
})

var sqlParser = participle.MustBuild[Script](
	participle.Lexer(sqlLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.CaseInsensitive("Keyword", "Ident"),
	participle.UseLookahead(participle.MaxLookahead),
)

type Script struct {
	Statement *Statement `@@ ";"?`
}

type Statement struct {
	Insert *Insert `  @@`
	Update *Update `| @@`
	Delete *Delete `| @@`
	Query  *Query  `| @@`
}

type Query struct {
	With *With     `@@?`
	Body *SetExpr  `@@`
	Tail []*Clause `@@*`
}

type With struct {
	Recursive bool   `"WITH" @"RECURSIVE"?`
	CTEs      []*CTE `@@ ("," @@)*`
}

type CTE struct {
	Name    string   `@(Ident | QuotedIdent)`
	Columns []string `("(" @(Ident | QuotedIdent) ("," @(Ident | QuotedIdent))* ")")?`
	Query   *Query   `"AS" ("NOT"? "MATERIALIZED")? "(" @@ ")"`
}

type SetExpr struct {
	Left  *Operand `@@`
	Right []*SetOp `@@*`
}

type SetOp struct {
	Op      string   `@("UNION" | "INTERSECT" | "EXCEPT" | "MINUS")`
	Quant   string   `@("ALL" | "DISTINCT")?`
	Operand *Operand `@@`
}

type Operand struct {
	Select *Select  `  @@`
	Sub    *Query   `| "(" @@ ")"`
	Values []*Chunk `| "VALUES" @@+`
}

type Select struct {
	Items   []*Chunk     `"SELECT" @@*`
	From    []*TableExpr `("FROM" @@ ("," @@)*)?`
	Clauses []*Clause    `@@*`
}

// Clause WHERE/GROUP BY/ORDER BY 等子句，内容不区分结构
type Clause struct {
	Keyword string   `@("WHERE" | "GROUP" | "HAVING" | "WINDOW" | "QUALIFY" | "ORDER" | "LIMIT" | "OFFSET" | "FETCH" | "FOR" | "RETURNING")`
	Body    []*Chunk `@@*`
}

type TableExpr struct {
	Factor *TableFactor `@@`
	Joins  []*Join      `@@*`
}

type Join struct {
	Kind  []string     `@("NATURAL" | "INNER" | "LEFT" | "RIGHT" | "FULL" | "OUTER" | "CROSS")*`
	Verb  string       `@("JOIN" | "APPLY")`
	Table *TableFactor `@@`
	On    []*Cond      `( "ON" @@+`
	Using *Paren       `| "USING" @@ )?`
}

type TableFactor struct {
	Lateral bool       `@"LATERAL"?`
	Sub     *Query     `( "(" @@ ")"`
	Nested  *TableExpr `| "(" @@ ")"`
	Name    *TableName `| @@`
	Args    *Paren     `  @@? )`
	Alias   *Alias     `@@?`
	Hints   *Paren     `("WITH" @@)?`
}

type TableName struct {
	Parts []*NamePart `@@ ("." @@)*`
}

type NamePart struct {
	Pos   lexer.Position
	Value string `@(Ident | QuotedIdent)`
}

type Alias struct {
	Name    string   `"AS"? @(Ident | QuotedIdent)`
	Columns []string `("(" @(Ident | QuotedIdent) ("," @(Ident | QuotedIdent))* ")")?`
}

type Paren struct {
	Query *Query  `"(" ( @@`
	Items []*Item `    | @@+ )? ")"`
}

// Chunk 表达式中的一个 token 或括号，遇到子句关键字停止
type Chunk struct {
	Paren *Paren `  @@`
	Call  string `| @("LEFT" | "RIGHT" | "GROUP" | "VALUES") (?= "(")`
	Token string `| @!("(" | ")" | ";" | "FROM" | "WHERE" | "GROUP" | "HAVING" | "WINDOW" | "QUALIFY" | "ORDER" | "LIMIT" | "OFFSET" | "FETCH" | "FOR" | "RETURNING" | "UNION" | "INTERSECT" | "EXCEPT" | "MINUS")`
}

// Cond JOIN 的 ON 条件，遇到下一个 JOIN 或逗号停止
type Cond struct {
	Paren *Paren `  @@`
	Call  string `| @("LEFT" | "RIGHT") (?= "(")`
	Token string `| @!("(" | ")" | ";" | "," | "SET" | "JOIN" | "APPLY" | "NATURAL" | "INNER" | "LEFT" | "RIGHT" | "FULL" | "OUTER" | "CROSS" | "WHERE" | "GROUP" | "HAVING" | "WINDOW" | "QUALIFY" | "ORDER" | "LIMIT" | "OFFSET" | "FETCH" | "FOR" | "RETURNING" | "UNION" | "INTERSECT" | "EXCEPT" | "MINUS")`
}

// Item 括号内的 token，SELECT 只能作为子查询出现
type Item struct {
	Paren *Paren `  @@`
	Token string `| @!("(" | ")" | ";" | "SELECT")`
}

type Insert struct {
	Table   *TableName `"INSERT" "INTO" @@`
	Alias   *Alias     `("AS" @@)?`
	Columns *Paren     `@@?`
	Source  *Query     `( @@`
	Default bool       `| @("DEFAULT" "VALUES") )?`
	Tail    []*Item    `@@*`
}

type Update struct {
	Table   *TableExpr   `"UPDATE" @@`
	Set     []*Chunk     `"SET" @@+`
	From    []*TableExpr `("FROM" @@ ("," @@)*)?`
	Clauses []*Clause    `@@*`
}

type Delete struct {
	Targets []*TableName `"DELETE" (@@ ("," @@)*)?`
	From    []*TableExpr `("FROM" @@ ("," @@)*)?`
	Using   []*TableExpr `("USING" @@ ("," @@)*)?`
	Clauses []*Clause    `@@*`
}
