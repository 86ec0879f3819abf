package cfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	case ".ini":
		return "ini"
	}
	return "yaml"
}

func decode(format string, content []byte) (any, error) {
	var data any
	switch format {
	case "yaml", "yml":
		var m map[string]any
		if err := yaml.Unmarshal(content, &m); err != nil {
			return nil, errors.Wrap(err, "yaml unmarshal failed")
		}
		data = m
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(content))
		decoder.UseNumber()
		var m map[string]any
		if err := decoder.Decode(&m); err != nil {
			return nil, errors.Wrap(err, "json decode failed")
		}
		data = m
	case "toml":
		var m map[string]any
		if _, err := toml.Decode(string(content), &m); err != nil {
			return nil, errors.Wrap(err, "toml decode failed")
		}
		data = m
	case "ini":
		m, err := decodeIni(content)
		if err != nil {
			return nil, err
		}
		data = m
	default:
		return nil, errors.Errorf("unsupported config format %s", format)
	}
	if data == nil {
		data = map[string]any{}
	}
	return normalize(data), nil
}

// decodeIni 默认分区的 key 放在顶层，其他分区作为子配置，分区名中的点号表示层级
func decodeIni(content []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true, SpaceBeforeInlineComment: true}, content)
	if err != nil {
		return nil, errors.Wrap(err, "ini load failed")
	}
	c := &Config{data: map[string]any{}}
	for _, section := range file.Sections() {
		for _, key := range section.Keys() {
			name := key.Name()
			if section.Name() != ini.DefaultSection {
				name = section.Name() + "." + name
			}
			if err := c.Set(name, key.Value()); err != nil {
				return nil, err
			}
		}
	}
	return c.data.(map[string]any), nil
}

// normalize 统一成 map[string]any 和 []any，yaml 的 map[any]any、json.Number 在这里处理
func normalize(data any) any {
	switch v := data.(type) {
	case map[string]any:
		for k, value := range v {
			v[k] = normalize(value)
		}
		return v
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, value := range v {
			m[fmt.Sprint(k)] = normalize(value)
		}
		return m
	case []any:
		for i, value := range v {
			v[i] = normalize(value)
		}
		return v
	case []map[string]any:
		s := make([]any, len(v))
		for i, value := range v {
			s[i] = normalize(value)
		}
		return s
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	}
	return data
}
