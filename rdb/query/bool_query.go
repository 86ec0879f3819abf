package query

import (
	"fmt"
	"strings"
)

// BoolQuery 布尔查询
// Must 和 Filter 在 SQL 中含义相同，Should 默认至少满足一个
type BoolQuery struct {
	Must           []Query `json:"must,omitempty"`
	Should         []Query `json:"should,omitempty"`
	MustNot        []Query `json:"must_not,omitempty"`
	Filter         []Query `json:"filter,omitempty"`
	MinShouldMatch *int    `json:"minimum_should_match,omitempty"`
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func (q *BoolQuery) ToSQL(r *Resolver) (string, []any, error) {
	var conditions []string
	var args []any

	build := func(queries []Query, wrap string) ([]string, error) {
		parts := make([]string, 0, len(queries))
		for _, query := range queries {
			sql, queryArgs, err := query.ToSQL(r)
			if err != nil {
				return nil, err
			}
			parts = append(parts, fmt.Sprintf(wrap, sql))
			args = append(args, queryArgs...)
		}
		return parts, nil
	}

	for _, queries := range [][]Query{q.Must, q.Filter} {
		parts, err := build(queries, "%s")
		if err != nil {
			return "", nil, err
		}
		if len(parts) > 0 {
			conditions = append(conditions, "("+strings.Join(parts, " AND ")+")")
		}
	}

	shoulds, err := build(q.Should, "%s")
	if err != nil {
		return "", nil, err
	}
	if len(shoulds) > 0 {
		if q.MinShouldMatch != nil && *q.MinShouldMatch != 1 {
			// 条件计数
			cases := make([]string, len(shoulds))
			for i, condition := range shoulds {
				cases[i] = fmt.Sprintf("CASE WHEN (%s) THEN 1 ELSE 0 END", condition)
			}
			conditions = append(conditions, fmt.Sprintf("(%s) >= %d", strings.Join(cases, " + "), *q.MinShouldMatch))
		} else {
			conditions = append(conditions, "("+strings.Join(shoulds, " OR ")+")")
		}
	}

	nots, err := build(q.MustNot, "NOT (%s)")
	if err != nil {
		return "", nil, err
	}
	if len(nots) > 0 {
		conditions = append(conditions, "("+strings.Join(nots, " AND ")+")")
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conditions, " AND "), args, nil
}
