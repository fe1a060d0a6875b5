package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValueStore(t *testing.T) {
	store := NewValueStore()
	store.Store(map[string]any{"key": "value"})
	assert.Equal(t, "value", store.Load()["key"])

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Load()
		}()
	}
	wg.Wait()
}

func TestSplitPath(t *testing.T) {
	parts := splitPath("a:b.c")
	assert.Equal(t, []string{"a", "b", "c"}, parts)
	assert.Equal(t, parts, splitPath("a:b.c"))
	assert.Equal(t, []string{"a", "b"}, splitPath("a::b"))
}

func TestInMemoryOverrides(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"di": map[string]any{"diagnostics": false, "log_level": "info"}}).
		AddInMemory(map[string]any{"di": map[string]any{"diagnostics": true}}).
		Build()
	require.NoError(t, err)

	on, err := cfg.GetBool("di:diagnostics")
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, "info", cfg.Get("di.log_level"))
	assert.True(t, cfg.Has("di"))
	assert.False(t, cfg.Has("di:missing"))
	assert.Equal(t, "fallback", cfg.GetWithDefault("nope", "fallback"))
}

func TestYamlSource(t *testing.T) {
	path := writeFile(t, "app.yaml", "di:\n  diagnostics: true\n  max_depth: 64\n")

	cfg, err := NewConfigurationBuilder().AddYamlFile(path).Build()
	require.NoError(t, err)

	depth, err := cfg.GetInt("di:max_depth")
	require.NoError(t, err)
	assert.Equal(t, 64, depth)
}

func TestTomlSource(t *testing.T) {
	path := writeFile(t, "app.toml", "[di]\ndiagnostics = true\nmax_depth = 32\n")

	cfg, err := NewConfigurationBuilder().AddTomlFile(path).Build()
	require.NoError(t, err)

	depth, err := cfg.GetInt("di:max_depth")
	require.NoError(t, err)
	assert.Equal(t, 32, depth)

	section := cfg.GetSection("di")
	on, err := section.GetBool("diagnostics")
	require.NoError(t, err)
	assert.True(t, on)
}

func TestJsonSource(t *testing.T) {
	path := writeFile(t, "app.json", `{"di":{"default_lifetime":"transient"}}`)

	cfg, err := NewConfigurationBuilder().AddJsonFile(path).Build()
	require.NoError(t, err)
	assert.Equal(t, "transient", cfg.Get("di:default_lifetime"))
}

func TestDotEnvSource(t *testing.T) {
	path := writeFile(t, ".env", "IOC_DI__LOG_LEVEL=debug\nIOC_DI__DIAGNOSTICS=true\nOTHER=1\n")

	cfg, err := NewConfigurationBuilder().AddDotEnvFile(path, "IOC_").Build()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Get("di:log_level"))
	on, err := cfg.GetBool("di:diagnostics")
	require.NoError(t, err)
	assert.True(t, on)
	assert.False(t, cfg.Has("other"))
}

func TestEnvironmentSource(t *testing.T) {
	t.Setenv("IOCTEST_DI__MAX_DEPTH", "128")

	cfg, err := NewConfigurationBuilder().AddEnvironmentVariables("IOCTEST_").Build()
	require.NoError(t, err)

	depth, err := cfg.GetInt("di:max_depth")
	require.NoError(t, err)
	assert.Equal(t, 128, depth)
}

func TestOptionalMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := NewConfigurationBuilder().
		AddYamlFile(filepath.Join(dir, "none.yaml"), true).
		AddTomlFile(filepath.Join(dir, "none.toml"), true).
		AddJsonFile(filepath.Join(dir, "none.json"), true).
		AddDotEnvFile(filepath.Join(dir, ".env"), "", true).
		Build()
	assert.NoError(t, err)

	_, err = NewConfigurationBuilder().AddYamlFile(filepath.Join(dir, "none.yaml")).Build()
	assert.Error(t, err)
}

type diSettings struct {
	Diagnostics bool   `json:"diagnostics"`
	LogLevel    string `json:"log_level"`
}

func TestLoad(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"di": map[string]any{"diagnostics": true, "log_level": "warn"}}).
		Build()
	require.NoError(t, err)

	settings, err := Load[diSettings](cfg, "di")
	require.NoError(t, err)
	assert.Equal(t, diSettings{Diagnostics: true, LogLevel: "warn"}, settings)

	_, err = Load[diSettings](cfg, "missing")
	assert.Error(t, err)
}

func TestEtcdKeyMapping(t *testing.T) {
	key, ok := etcdKey("/ioc/di/log_level", "/ioc")
	require.True(t, ok)
	assert.Equal(t, "di:log_level", key)

	_, ok = etcdKey("/ioc/", "/ioc")
	assert.False(t, ok)

	assert.Equal(t, map[string]any{"a": float64(1)}, decodeEtcdValue([]byte(`{"a":1}`)))
	assert.Equal(t, "plain text", decodeEtcdValue([]byte("plain text")))
}
