package query

import "fmt"

// PrefixQuery 前缀匹配，值中的 % 和 _ 按字面匹配
type PrefixQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *PrefixQuery) Type() QueryType {
	return QueryTypePrefix
}

func (q *PrefixQuery) ToSQL(r *Resolver) (string, []any, error) {
	column, err := r.Column(q.Field)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s LIKE ? ESCAPE '%s'", column, likeEscape), []any{escapeLike(q.Value) + "%"}, nil
}
