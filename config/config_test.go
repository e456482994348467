package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	cfg, err := Load("config.toml")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Resolver.SelfHealingEnabled)
	assert.Equal(t, 0.7, cfg.AI.ConfidenceThreshold)
	assert.False(t, cfg.AI.Enabled)

	// 默认配置会写回文件，便于用户修改
	_, statErr := os.Stat("config.toml")
	assert.NoError(t, statErr)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
debug = true

[server]
port = "9090"
host = "127.0.0.1"

[resolver]
self_healing_enabled = false
element_retry_count = 3
element_timeout_sec = 2

[ai]
enabled = true
confidence_threshold = 0.8
model = "gpt-4o"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Resolver.SelfHealingEnabled)
	assert.Equal(t, 3, cfg.Resolver.ElementRetryCount)
	assert.Equal(t, 2*time.Second, cfg.Resolver.ElementTimeout())
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, 0.8, cfg.AI.ConfidenceThreshold)

	// 文件缺失的段落回填默认值
	require.NotNil(t, cfg.Database)
	require.NotNil(t, cfg.Browser)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[resolver]\nself_healing_enabled = true\n"), 0o644))

	t.Setenv("SELF_HEALING_ENABLED", "false")
	t.Setenv("ELEMENT_RETRY_COUNT", "5")
	t.Setenv("AI_ENABLED", "true")
	t.Setenv("AI_CONFIDENCE_THRESHOLD", "0.9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Resolver.SelfHealingEnabled)
	assert.Equal(t, 5, cfg.Resolver.ElementRetryCount)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, 0.9, cfg.AI.ConfidenceThreshold)
}

func TestTimeoutFallbacks(t *testing.T) {
	c := &ResolverConfig{}
	assert.Equal(t, 5*time.Second, c.ElementTimeout())
	assert.Equal(t, 30*time.Second, c.DefaultTimeout())

	c = &ResolverConfig{ElementTimeoutSec: 10, DefaultTimeoutSec: 60}
	assert.Equal(t, 10*time.Second, c.ElementTimeout())
	assert.Equal(t, 60*time.Second, c.DefaultTimeout())
}
