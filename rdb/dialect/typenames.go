package dialect

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/meta"
)

type capacityTemplate struct {
	capacity int
	template string
}

// TypeNames 逻辑类型到数据库列类型模板的映射
// 模板中的 $l 替换为长度，$s 替换为精度；同一类型可以按容量分档
type TypeNames struct {
	dialect  string
	defaults map[meta.DataType]string
	capacity map[meta.DataType][]capacityTemplate
}

func NewTypeNames(dialect string) *TypeNames {
	return &TypeNames{
		dialect:  dialect,
		defaults: map[meta.DataType]string{},
		capacity: map[meta.DataType][]capacityTemplate{},
	}
}

// Put 注册默认模板
func (n *TypeNames) Put(t meta.DataType, template string) *TypeNames {
	n.defaults[t] = template
	return n
}

// PutCapacity 注册容量分档模板，按容量升序保存，同一 (类型, 容量) 重复注册时覆盖
func (n *TypeNames) PutCapacity(t meta.DataType, capacity int, template string) *TypeNames {
	buckets := n.capacity[t]
	for i := range buckets {
		if buckets[i].capacity == capacity {
			buckets[i].template = template
			return n
		}
	}
	buckets = append(buckets, capacityTemplate{capacity: capacity, template: template})
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].capacity < buckets[j].capacity })
	n.capacity[t] = buckets
	return n
}

// Get 默认模板，未注册时返回 TypeMappingError
func (n *TypeNames) Get(t meta.DataType) (string, error) {
	template, ok := n.defaults[t]
	if !ok {
		return "", &rdb.TypeMappingError{Dialect: n.dialect, Type: t.String()}
	}
	return template, nil
}

// GetSized 选择第一个容量严格大于 length 的分档，没有则使用默认模板，再替换 $l/$s
func (n *TypeNames) GetSized(t meta.DataType, length, scale int) (string, error) {
	template := ""
	for _, bucket := range n.capacity[t] {
		if length < bucket.capacity {
			template = bucket.template
			break
		}
	}
	if template == "" {
		var err error
		if template, err = n.Get(t); err != nil {
			return "", err
		}
	}
	return substitute(template, length, scale), nil
}

// Has 类型是否有默认模板
func (n *TypeNames) Has(t meta.DataType) bool {
	_, ok := n.defaults[t]
	return ok
}

// Clone 拷贝一份，版本方言在父方言映射上覆盖
func (n *TypeNames) Clone(dialect string) *TypeNames {
	c := NewTypeNames(dialect)
	for t, template := range n.defaults {
		c.defaults[t] = template
	}
	for t, buckets := range n.capacity {
		c.capacity[t] = append([]capacityTemplate(nil), buckets...)
	}
	return c
}

func substitute(template string, length, scale int) string {
	return strings.NewReplacer("$l", strconv.Itoa(length), "$s", strconv.Itoa(scale)).Replace(template)
}
