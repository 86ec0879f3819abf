package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type datasourceOptions struct {
	Driver      string        `cfg:"driver" validate:"required"`
	DSN         string        `cfg:"dsn"`
	MaxOpen     int           `cfg:"maxOpen" def:"10"`
	ConnTimeout time.Duration `cfg:"connTimeout" def:"3s"`
}

type schemaOptions struct {
	Generate bool `cfg:"generate" def:"true"`
	DryRun   bool `cfg:"dryRun"`
}

type appOptions struct {
	Datasource datasourceOptions `cfg:"datasource"`
	Schema     *schemaOptions    `cfg:"schema"`
	Dirs       []string          `cfg:"dirs"`
	Labels     map[string]string `cfg:"labels"`
	Extra      any               `cfg:"extra"`
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfigFormats(t *testing.T) {
	files := map[string]string{
		"app.yaml": `
datasource:
  driver: mysql
  maxOpen: 20
schema:
  dryRun: true
dirs: [a, b]
`,
		"app.json": `{"datasource": {"driver": "mysql", "maxOpen": 20}, "schema": {"dryRun": true}, "dirs": ["a", "b"]}`,
		"app.toml": `
dirs = ["a", "b"]
[datasource]
driver = "mysql"
maxOpen = 20
[schema]
dryRun = true
`,
		"app.ini": `
dirs = a,b
[datasource]
driver = mysql
maxOpen = 20
[schema]
dryRun = true
`,
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			c, err := NewConfigWithOptions(&Options{File: writeFile(t, name, content)})
			require.NoError(t, err)

			var options appOptions
			require.NoError(t, c.ConvertTo(&options))
			require.Equal(t, "mysql", options.Datasource.Driver)
			require.Equal(t, 20, options.Datasource.MaxOpen)
			require.Equal(t, 3*time.Second, options.Datasource.ConnTimeout)
			require.True(t, options.Schema.Generate)
			require.True(t, options.Schema.DryRun)
			require.Equal(t, []string{"a", "b"}, options.Dirs)

			v, ok := c.Lookup("schema.dryRun")
			require.True(t, ok)
			require.Equal(t, "true", v)
		})
	}
}

func TestConfigGetAndSub(t *testing.T) {
	c := NewConfigWithData(map[string]any{
		"tables": map[string]any{
			"dirs": []any{"/etc/rdbx/tables", "./tables"},
		},
		"feature": map[string]any{"audit": false},
	})

	v, ok := c.Get("tables.dirs[1]")
	require.True(t, ok)
	require.Equal(t, "./tables", v)

	_, ok = c.Get("tables.dirs[5]")
	require.False(t, ok)

	s, ok := c.Lookup("FEATURE.AUDIT")
	require.True(t, ok)
	require.Equal(t, "false", s)

	_, ok = c.Lookup("tables")
	require.False(t, ok)

	require.Equal(t, []string{"audit"}, c.Sub("feature").Keys())
	require.Nil(t, c.Sub("missing").Data())
}

func TestConfigEnvOverlay(t *testing.T) {
	t.Setenv("RDBX_DATASOURCE_DSN", "file::memory:")
	t.Setenv("RDBX_SCHEMA_DRYRUN", "true")
	t.Setenv("RDBX_DIRS", "x, y")

	c, err := NewConfigWithOptions(&Options{
		File:      writeFile(t, "app.yaml", "datasource:\n  driver: sqlite\nschema:\n  dryRun: false\n"),
		EnvPrefix: "rdbx",
	})
	require.NoError(t, err)

	var options appOptions
	require.NoError(t, c.ConvertTo(&options))
	require.Equal(t, "sqlite", options.Datasource.Driver)
	require.Equal(t, "file::memory:", options.Datasource.DSN)
	require.True(t, options.Schema.DryRun)
	require.Equal(t, []string{"x", "y"}, options.Dirs)
}

func TestConfigConvertTo(t *testing.T) {
	t.Run("validate", func(t *testing.T) {
		c := NewConfigWithData(map[string]any{"datasource": map[string]any{"dsn": "x"}})
		var options appOptions
		err := c.ConvertTo(&options)
		require.Error(t, err)
		require.Contains(t, err.Error(), "Driver")
	})

	t.Run("map value for any becomes Config", func(t *testing.T) {
		c := NewConfigWithData(map[string]any{
			"datasource": map[string]any{"driver": "mysql"},
			"extra":      map[string]any{"driver": "pgx", "maxOpen": "5"},
			"labels":     map[string]any{"env": "test"},
		})
		var options appOptions
		require.NoError(t, c.ConvertTo(&options))
		require.Equal(t, map[string]string{"env": "test"}, options.Labels)

		sub, ok := options.Extra.(*Config)
		require.True(t, ok)
		var ds datasourceOptions
		require.NoError(t, sub.ConvertTo(&ds))
		require.Equal(t, "pgx", ds.Driver)
		require.Equal(t, 5, ds.MaxOpen)
	})

	t.Run("type mismatch", func(t *testing.T) {
		c := NewConfigWithData(map[string]any{"datasource": map[string]any{"driver": "mysql", "maxOpen": "many"}})
		var options appOptions
		require.Error(t, c.ConvertTo(&options))
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := NewConfigWithOptions(&Options{File: writeFile(t, "app.yaml", "a: 1"), Format: "xml"})
		require.Error(t, err)
	})
}

func TestConfigSet(t *testing.T) {
	c := NewConfigWithData(map[string]any{"schema": map[string]any{"dryRun": false}})
	require.NoError(t, c.Set("SCHEMA.DRYRUN", true))
	require.NoError(t, c.Set("log.level", "debug"))

	v, _ := c.Lookup("schema.dryRun")
	require.Equal(t, "true", v)
	v, _ = c.Lookup("log.level")
	require.Equal(t, "debug", v)
	require.ElementsMatch(t, []string{"log", "schema"}, c.Keys())
}
