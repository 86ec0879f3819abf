package query

import (
	"fmt"
	"strings"
)

// WildcardQuery 通配符查询，* 匹配任意个字符，? 匹配一个字符
type WildcardQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *WildcardQuery) Type() QueryType {
	return QueryTypeWildcard
}

func (q *WildcardQuery) ToSQL(r *Resolver) (string, []any, error) {
	column, err := r.Column(q.Field)
	if err != nil {
		return "", nil, err
	}
	pattern := strings.NewReplacer("*", "%", "?", "_").Replace(escapeLike(q.Value))
	return fmt.Sprintf("%s LIKE ? ESCAPE '%s'", column, likeEscape), []any{pattern}, nil
}
