package query

import (
	"fmt"
	"strings"
)

// RangeQuery 范围查询，边界全部为空时不限制
type RangeQuery struct {
	Field string `json:"field"`
	Gt    any    `json:"gt,omitempty"`
	Gte   any    `json:"gte,omitempty"`
	Lt    any    `json:"lt,omitempty"`
	Lte   any    `json:"lte,omitempty"`
}

func (q *RangeQuery) Type() QueryType {
	return QueryTypeRange
}

func (q *RangeQuery) ToSQL(r *Resolver) (string, []any, error) {
	column, err := r.Column(q.Field)
	if err != nil {
		return "", nil, err
	}

	var conditions []string
	var args []any
	for _, bound := range []struct {
		op    string
		value any
	}{{">", q.Gt}, {">=", q.Gte}, {"<", q.Lt}, {"<=", q.Lte}} {
		if bound.value == nil {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s %s ?", column, bound.op))
		args = append(args, bound.value)
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conditions, " AND "), args, nil
}
