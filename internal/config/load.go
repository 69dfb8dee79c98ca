package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "TASKQUEUE"

// legacyEnv lists the environment variables honoured besides the TASKQUEUE_ ones.
var legacyEnv = map[string]string{
	"store.path":           "TASK_MANAGER_FILE_PATH",
	"llm.openai.api_key":   "OPENAI_API_KEY",
	"llm.google.api_key":   "GOOGLE_GENERATIVE_AI_API_KEY",
	"llm.deepseek.api_key": "DEEPSEEK_API_KEY",
}

// Load layers defaults, the optional config file at path, environment variables
// and whatever flags the caller bound on v, then validates the result. A missing
// file is not an error unless required is set.
func Load(v *viper.Viper, path string, required bool) (*Config, error) {
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(defaultTemplate)); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("invalid config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) || required {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, env); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
