package meta

import (
	"strings"

	"github.com/hatlonely/rdbx/rdb"
)

// Registry 表名/别名到表元数据的注册表
// 启动阶段单线程注册，Freeze 之后只读，可以无锁并发访问
type Registry struct {
	tables []*TableMeta
	byName map[string]*TableMeta
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*TableMeta{}}
}

// Conflict 返回与 t 的表名或别名冲突的已注册表
func (r *Registry) Conflict(t *TableMeta) (*TableMeta, string, bool) {
	for _, key := range []string{t.Name(), t.Alias()} {
		if key == "" {
			continue
		}
		if existing, ok := r.byName[key]; ok {
			return existing, key, true
		}
	}
	return nil, "", false
}

// Register 注册表元数据，表名或别名冲突（大小写不敏感）时返回 ConfigurationError
func (r *Registry) Register(t *TableMeta) error {
	if r.frozen {
		return rdb.NewConfigurationError(t.Source().String(), t.Name(), "registry is frozen")
	}
	if existing, key, ok := r.Conflict(t); ok {
		return rdb.NewConfigurationError(t.Source().String(), t.Name(),
			"name %s collides with table %s declared in %s", key, existing.Name(), existing.Source())
	}
	r.byName[t.Name()] = t
	if t.Alias() != "" {
		r.byName[t.Alias()] = t
	}
	r.tables = append(r.tables, t)
	return nil
}

// Freeze 结束注册阶段
func (r *Registry) Freeze() {
	r.frozen = true
}

func (r *Registry) Frozen() bool {
	return r.frozen
}

// Lookup 按表名或别名查找，大小写不敏感
func (r *Registry) Lookup(name string) (*TableMeta, bool) {
	t, ok := r.byName[strings.ToUpper(strings.TrimSpace(name))]
	return t, ok
}

// Tables 按注册顺序返回全部表
func (r *Registry) Tables() []*TableMeta {
	return append([]*TableMeta(nil), r.tables...)
}

func (r *Registry) Len() int {
	return len(r.tables)
}

// Dependents 返回 name 自身以及直接或间接引用它的表，按广度优先顺序排列，用于缓存失效
func (r *Registry) Dependents(name string) []*TableMeta {
	root, ok := r.Lookup(name)
	if !ok {
		return nil
	}
	order := []*TableMeta{root}
	seen := map[string]bool{root.Name(): true}
	for i := 0; i < len(order); i++ {
		current := order[i]
		for _, t := range r.tables {
			if seen[t.Name()] {
				continue
			}
			for _, ref := range t.references {
				if target, ok := r.Lookup(ref.Table); ok && target == current {
					seen[t.Name()] = true
					order = append(order, t)
					break
				}
			}
		}
	}
	return order
}
