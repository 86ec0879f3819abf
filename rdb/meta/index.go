package meta

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// IndexColumn 索引列，Desc 为 true 表示降序
type IndexColumn struct {
	Name string
	Desc bool
}

// IndexMeta 索引定义
type IndexMeta struct {
	Name    string
	Unique  bool
	Columns []IndexColumn
}

func (idx *IndexMeta) clone() *IndexMeta {
	c := *idx
	c.Columns = append([]IndexColumn(nil), idx.Columns...)
	return &c
}

// CanonicalKey 索引的规范序列化：唯一标志 + 有序的列/方向
// 列顺序参与比较，(A,B) 与 (B,A) 是两个不同的索引
func (idx *IndexMeta) CanonicalKey() string {
	return CanonicalIndexKey(idx.Unique, idx.Columns)
}

// CanonicalIndexKey 计算规范序列化，线上索引比对也用它
func CanonicalIndexKey(unique bool, columns []IndexColumn) string {
	var sb strings.Builder
	if unique {
		sb.WriteString("U:")
	} else {
		sb.WriteString("N:")
	}
	for i, col := range columns {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strings.ToUpper(col.Name))
		if col.Desc {
			sb.WriteString(":D")
		} else {
			sb.WriteString(":A")
		}
	}
	return sb.String()
}

// Equal 两个索引的规范序列化相同即相等
func (idx *IndexMeta) Equal(other *IndexMeta) bool {
	return other != nil && idx.CanonicalKey() == other.CanonicalKey()
}

// Hash 规范序列化的摘要
func (idx *IndexMeta) Hash() string {
	sum := blake3.Sum256([]byte(idx.CanonicalKey()))
	return hex.EncodeToString(sum[:])
}

// IndexName 未显式命名时生成 IX_<表名>_<摘要前8位>，总长不超过 30
func (idx *IndexMeta) IndexName(table string) string {
	if idx.Name != "" {
		return idx.Name
	}
	prefix := "IX_"
	if idx.Unique {
		prefix = "UX_"
	}
	hash := strings.ToUpper(idx.Hash()[:8])
	base := table
	if limit := 30 - len(prefix) - len(hash) - 1; len(base) > limit {
		base = base[:limit]
	}
	return prefix + base + "_" + hash
}

func (idx *IndexMeta) String() string {
	return fmt.Sprintf("%s(%s)", idx.Name, idx.CanonicalKey())
}

// ParseIndexColumns 解析 "COL1 DESC, COL2" 或 "COL1:desc,COL2:asc" 形式的列声明
func ParseIndexColumns(spec string) ([]IndexColumn, error) {
	var columns []IndexColumn
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.FieldsFunc(part, func(r rune) bool { return r == ' ' || r == ':' || r == '\t' })
		col := IndexColumn{Name: strings.ToUpper(fields[0])}
		if len(fields) > 2 {
			return nil, fmt.Errorf("malformed index column %q", part)
		}
		if len(fields) == 2 {
			switch strings.ToUpper(fields[1]) {
			case "ASC":
			case "DESC":
				col.Desc = true
			default:
				return nil, fmt.Errorf("malformed index direction %q", fields[1])
			}
		}
		columns = append(columns, col)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("index %q has no columns", spec)
	}
	return columns, nil
}
