package query

import "fmt"

// TermQuery 精确匹配查询，Value 为 nil 时匹配 NULL
type TermQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) ToSQL(r *Resolver) (string, []any, error) {
	column, err := r.Column(q.Field)
	if err != nil {
		return "", nil, err
	}
	if q.Value == nil {
		return column + " IS NULL", nil, nil
	}
	return fmt.Sprintf("%s = ?", column), []any{q.Value}, nil
}

// TermsQuery 多值匹配，生成 IN 条件
type TermsQuery struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
}

func (q *TermsQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermsQuery) ToSQL(r *Resolver) (string, []any, error) {
	column, err := r.Column(q.Field)
	if err != nil {
		return "", nil, err
	}
	if len(q.Values) == 0 {
		return "1=0", nil, nil
	}
	placeholders := make([]byte, 0, len(q.Values)*3)
	for i := range q.Values {
		if i > 0 {
			placeholders = append(placeholders, ", "...)
		}
		placeholders = append(placeholders, '?')
	}
	return fmt.Sprintf("%s IN (%s)", column, placeholders), append([]any(nil), q.Values...), nil
}
