package datatable

import (
	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/rdb/meta"
)

// Status 行状态
type Status int

const (
	// StatusInit 从数据库读出且与快照一致
	StatusInit Status = iota
	// StatusAdd 新建行，保存前一直是 Add
	StatusAdd
	// StatusModify 至少一列与快照不同
	StatusModify
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusAdd:
		return "add"
	case StatusModify:
		return "modify"
	}
	return "unknown"
}

// RowLine 行值快照，创建后不再修改
type RowLine struct {
	values []any
}

func NewRowLine(values []any) RowLine {
	return RowLine{values: append([]any(nil), values...)}
}

func (r RowLine) Len() int { return len(r.values) }

func (r RowLine) Value(i int) any { return r.values[i] }

// Values 值的拷贝
func (r RowLine) Values() []any { return append([]any(nil), r.values...) }

// RowLineSet 一行的快照、当前值和脏标记
// Set 改变了值时置脏标记（只置一次），Status 在脏标记置位后才做完整的快照比对
// 同一行不能在多个 goroutine 中同时修改
type RowLineSet struct {
	table    *meta.TableMeta
	columns  []meta.Column
	snapshot RowLine
	current  []any
	dirty    bool
	added    bool
}

func newRowLineSet(table *meta.TableMeta, columns []meta.Column, values []any, added bool) *RowLineSet {
	return &RowLineSet{
		table:    table,
		columns:  columns,
		snapshot: NewRowLine(values),
		current:  append([]any(nil), values...),
		added:    added,
	}
}

// Set 按列名设置值
func (r *RowLineSet) Set(column string, value any) error {
	i := r.table.FieldIndex(column)
	if i < 0 {
		return errors.Errorf("table %s has no column %s", r.table.Name(), column)
	}
	r.SetAt(i, value)
	return nil
}

// SetAt 按列位置设置值
func (r *RowLineSet) SetAt(i int, value any) {
	if !r.dirty && !Equal(r.columns[i], r.current[i], value) {
		r.dirty = true
	}
	r.current[i] = value
}

// Get 按列名取当前值
func (r *RowLineSet) Get(column string) (any, bool) {
	i := r.table.FieldIndex(column)
	if i < 0 {
		return nil, false
	}
	return r.current[i], true
}

func (r *RowLineSet) GetAt(i int) any {
	return r.current[i]
}

// Values 当前值的拷贝，按表字段顺序
func (r *RowLineSet) Values() []any {
	return append([]any(nil), r.current...)
}

func (r *RowLineSet) Snapshot() RowLine {
	return r.snapshot
}

func (r *RowLineSet) Dirty() bool {
	return r.dirty
}

// Status Add 行始终为 Add；否则只有快照与当前值确实不同才是 Modify
// 改了又改回原值的行仍然是 Init
func (r *RowLineSet) Status() Status {
	if r.added {
		return StatusAdd
	}
	if r.dirty && len(r.Changed()) > 0 {
		return StatusModify
	}
	return StatusInit
}

// Changed 与快照不同的列位置
func (r *RowLineSet) Changed() []int {
	if !r.dirty && !r.added {
		return nil
	}
	var changed []int
	for i, col := range r.columns {
		if !Equal(col, r.snapshot.values[i], r.current[i]) {
			changed = append(changed, i)
		}
	}
	return changed
}

// rebase 保存成功后以当前值为新的快照
func (r *RowLineSet) rebase() {
	r.snapshot = NewRowLine(r.current)
	r.dirty = false
	r.added = false
}
