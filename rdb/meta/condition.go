package meta

import (
	"fmt"
	"strconv"
	"strings"
)

// PropertySource 条件判断所需的配置读取接口，*cfg.Config 实现了它
type PropertySource interface {
	Lookup(key string) (string, bool)
}

// MapProperties 基于 map 的配置源，主要用于测试
type MapProperties map[string]string

func (m MapProperties) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Condition 按配置决定是否纳入某张表
// 每个 key 都必须满足：存在时值等于 HavingValue（HavingValue 为空时值不为 false 即可），
// 不存在时取 MatchIfMissing
type Condition struct {
	Keys           []string `yaml:"keys" json:"keys" toml:"keys"`
	HavingValue    string   `yaml:"havingValue" json:"havingValue" toml:"havingValue"`
	MatchIfMissing bool     `yaml:"matchIfMissing" json:"matchIfMissing" toml:"matchIfMissing"`
}

// Evaluate 计算条件，props 为 nil 时所有 key 视为缺失
func (c *Condition) Evaluate(props PropertySource) bool {
	if c == nil {
		return true
	}
	for _, key := range c.Keys {
		var value string
		var ok bool
		if props != nil {
			value, ok = props.Lookup(key)
		}
		if !ok {
			if !c.MatchIfMissing {
				return false
			}
			continue
		}
		value = strings.TrimSpace(value)
		if c.HavingValue == "" {
			if strings.EqualFold(value, "false") {
				return false
			}
			continue
		}
		if !strings.EqualFold(value, c.HavingValue) {
			return false
		}
	}
	return true
}

// ParseCondition 解析标签形式的条件：keys=a.b|c.d,value=true,missing=true
func ParseCondition(tag string) (*Condition, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, nil
	}
	c := &Condition{}
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed condition %q", part)
		}
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "keys", "key", "name":
			for _, k := range strings.Split(value, "|") {
				if k = strings.TrimSpace(k); k != "" {
					c.Keys = append(c.Keys, k)
				}
			}
		case "value", "havingValue":
			c.HavingValue = value
		case "missing", "matchIfMissing":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("malformed condition %q: %v", part, err)
			}
			c.MatchIfMissing = b
		default:
			return nil, fmt.Errorf("unknown condition option %q", key)
		}
	}
	if len(c.Keys) == 0 {
		return nil, fmt.Errorf("condition %q has no keys", tag)
	}
	return c, nil
}
