package cfg

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Options 配置加载选项
type Options struct {
	// File 配置文件路径，为空时只使用环境变量
	File string `cfg:"file"`
	// Format yaml、json、toml、ini，为空时按扩展名判断
	Format string `cfg:"format" validate:"omitempty,oneof=yaml json toml ini"`
	// EnvPrefix 不为空时，PREFIX_A_B 形式的环境变量覆盖配置项 a.b（大小写不敏感）
	EnvPrefix string `cfg:"envPrefix"`
}

// Config 层级配置，key 用点号分隔，[n] 表示数组下标，例如 "datasource.dsn"、"tables.dirs[0]"
type Config struct {
	data any
}

func NewConfigWithOptions(options *Options) (*Config, error) {
	if options == nil {
		options = &Options{}
	}
	if err := Validate(options); err != nil {
		return nil, errors.WithMessage(err, "invalid config options")
	}

	c := &Config{data: map[string]any{}}
	if options.File != "" {
		content, err := os.ReadFile(options.File)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s failed", options.File)
		}
		format := options.Format
		if format == "" {
			format = formatOf(options.File)
		}
		data, err := decode(format, content)
		if err != nil {
			return nil, errors.WithMessagef(err, "decode config file %s failed", options.File)
		}
		c.data = data
	}
	if options.EnvPrefix != "" {
		c.overlayEnv(options.EnvPrefix, os.Environ())
	}
	return c, nil
}

// NewConfigWithData 使用已经解码的数据
func NewConfigWithData(data any) *Config {
	return &Config{data: normalize(data)}
}

func (c *Config) Data() any {
	return c.data
}

// Get 取配置项，key 为空时返回全部数据
func (c *Config) Get(key string) (any, bool) {
	current := c.data
	for _, k := range parseKey(key) {
		next, ok := child(current, k)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Lookup 取标量配置项的字符串形式，map 和数组视为不存在
func (c *Config) Lookup(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return "", false
	}
	switch v.(type) {
	case map[string]any, []any:
		return "", false
	case string:
		return v.(string), true
	}
	return fmt.Sprint(v), true
}

// Sub 子配置，不存在时返回空配置
func (c *Config) Sub(key string) *Config {
	v, ok := c.Get(key)
	if !ok {
		return &Config{}
	}
	return &Config{data: v}
}

// Set 设置配置项，中间层不存在时创建
func (c *Config) Set(key string, value any) error {
	keys := parseKey(key)
	if len(keys) == 0 {
		c.data = normalize(value)
		return nil
	}
	root, ok := c.data.(map[string]any)
	if !ok {
		if c.data != nil {
			return errors.Errorf("cannot set %s on %T", key, c.data)
		}
		root = map[string]any{}
		c.data = root
	}
	current := root
	for i, k := range keys {
		name := matchKey(current, k)
		if i == len(keys)-1 {
			current[name] = normalize(value)
			return nil
		}
		next, ok := current[name].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[name] = next
		}
		current = next
	}
	return nil
}

// Keys 当前层级的 key，按字典序
func (c *Config) Keys() []string {
	m, ok := c.data.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ConvertTo 转成结构体等任意类型，之后按 def 标签填充默认值并按 validate 标签校验
func (c *Config) ConvertTo(object any) error {
	if err := convert(c.data, object); err != nil {
		return err
	}
	if err := SetDefaults(object); err != nil {
		return err
	}
	return Validate(object)
}

func (c *Config) overlayEnv(prefix string, environ []string) {
	prefix = strings.ToUpper(prefix) + "_"
	for _, kv := range environ {
		i := strings.IndexByte(kv, '=')
		if i < 0 || !strings.HasPrefix(strings.ToUpper(kv[:i]), prefix) {
			continue
		}
		path := strings.ToLower(kv[len(prefix):i])
		if path == "" {
			continue
		}
		_ = c.Set(strings.ReplaceAll(path, "_", "."), kv[i+1:])
	}
}

// parseKey "a.b[0].c" -> [a b 0 c]
func parseKey(key string) []string {
	var keys []string
	for _, part := range strings.Split(key, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				keys = append(keys, part)
				break
			}
			if open > 0 {
				keys = append(keys, part[:open])
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				keys = append(keys, part[open+1:])
				break
			}
			keys = append(keys, part[open+1:open+end])
			part = part[open+end+1:]
		}
	}
	return keys
}

func child(data any, key string) (any, bool) {
	switch v := data.(type) {
	case map[string]any:
		if value, ok := v[key]; ok {
			return value, true
		}
		for k, value := range v {
			if strings.EqualFold(k, key) {
				return value, true
			}
		}
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	}
	return nil, false
}

// matchKey 已有 key 大小写不敏感匹配时沿用已有的写法
func matchKey(m map[string]any, key string) string {
	if _, ok := m[key]; ok {
		return key
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}
