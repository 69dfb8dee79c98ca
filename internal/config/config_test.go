package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskqueue/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.BackendJSON, cfg.Store.Backend)
	assert.Equal(t, "tasks.json", cfg.Store.Path)
	assert.Equal(t, config.IDsSequential, cfg.IDs)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
store:
  backend: sqlite
  path: data/tq.db
webhooks:
  - url: https://hooks.example.com/tq
    events: [task.approved]
    timeout_seconds: 3
`))
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"task.approved"}, cfg.Webhooks[0].Events)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":       "store:\n  backend: mongo\n",
		"ids":           "ids: random\n",
		"level":         "log:\n  level: loud\n",
		"base path":     "server:\n  base_path: v0\n",
		"provider":      "llm:\n  provider: acme\n",
		"webhook url":   "store:\n  backend: sqlite\nwebhooks:\n  - url: ftp://x\n",
		"webhook store": "webhooks:\n  - url: http://x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
	_, err := config.FromYAML([]byte("store: ["))
	assert.ErrorContains(t, err, "invalid config yaml")
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("ids: uuid\nlog:\n  level: debug\n"), 0o644))
	t.Setenv("TASK_MANAGER_FILE_PATH", "/tmp/legacy.json")
	t.Setenv("TASKQUEUE_LOG_FORMAT", "json")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := config.Load(viper.New(), path, false)
	require.NoError(t, err)
	assert.Equal(t, config.IDsUUID, cfg.IDs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/legacy.json", cfg.Store.Path)
	assert.Equal(t, "sk-env", cfg.LLM.OpenAI.APIKey)
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	t.Setenv("TASK_MANAGER_FILE_PATH", "/tmp/legacy.json")
	t.Setenv("TASKQUEUE_STORE_PATH", "/tmp/new.json")
	cfg, err := config.Load(viper.New(), "", false)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/new.json", cfg.Store.Path)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yml")
	cfg, err := config.Load(viper.New(), missing, false)
	require.NoError(t, err)
	assert.Equal(t, "tasks.json", cfg.Store.Path)

	_, err = config.Load(viper.New(), missing, true)
	assert.Error(t, err)
}

func TestYAMLRedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Server.JWTSecret = "topsecret"
	cfg.LLM.Google.APIKey = "g-key"
	out, err := cfg.YAML(true)
	require.NoError(t, err)
	assert.False(t, strings.Contains(out, "topsecret"))
	assert.False(t, strings.Contains(out, "g-key"))
	assert.Equal(t, "topsecret", cfg.Server.JWTSecret)

	out, err = cfg.YAML(false)
	require.NoError(t, err)
	assert.Contains(t, out, "topsecret")
}
