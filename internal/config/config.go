// Package config 加载 tracker 配置：全局 + 项目分层、JSONC 注释、环境变量覆盖。
// Package config loads the tracker configuration with global + project
// layering, JSONC comment support and environment variable overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type ProviderConfig struct {
	BaseURL   string   `json:"base_url"`
	Model     string   `json:"model"`
	Models    []string `json:"models"`
	APIKey    string   `json:"api_key"`
	TimeoutMS int      `json:"timeout_ms"`
}

type RuntimeConfig struct {
	ContextTokenLimit int `json:"context_token_limit"`
}

// TrackerConfig 追踪器行为配置
// TrackerConfig controls tracker behavior.
type TrackerConfig struct {
	// AutoUpdate 发送消息后是否自动请求追踪器更新
	// AutoUpdate requests a tracker update automatically after each message.
	AutoUpdate bool `json:"auto_update"`
	// MaxItems 单个清单字段的物品数量上限
	// MaxItems caps items per inventory list.
	MaxItems int `json:"max_items"`
	// SystemPrompt 叙事人设提示词，置于回复契约之前
	// SystemPrompt is the narrative persona prompt placed before the reply contract.
	SystemPrompt string `json:"system_prompt"`
}

type LoggingConfig struct {
	Debug bool   `json:"debug"`
	Level string `json:"level"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Tracker  TrackerConfig  `json:"tracker"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
}

// fileConfig 文件层使用指针字段，未出现的键不覆盖下层值。
// fileConfig uses pointer fields so keys absent from a file never override the
// layer below.
type fileConfig struct {
	Provider *ProviderConfig    `json:"provider"`
	Runtime  *fileRuntimeConfig `json:"runtime"`
	Tracker  *fileTrackerConfig `json:"tracker"`
	Logging  *fileLoggingConfig `json:"logging"`
	Storage  *StorageConfig     `json:"storage"`
}

type fileRuntimeConfig struct {
	ContextTokenLimit *int `json:"context_token_limit"`
}

type fileTrackerConfig struct {
	AutoUpdate   *bool   `json:"auto_update"`
	MaxItems     *int    `json:"max_items"`
	SystemPrompt *string `json:"system_prompt"`
}

type fileLoggingConfig struct {
	Debug *bool   `json:"debug"`
	Level *string `json:"level"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Model:     "qwen-plus",
			Models:    []string{"qwen-plus"},
			TimeoutMS: 120000,
		},
		Runtime: RuntimeConfig{
			ContextTokenLimit: DefaultContextTokenLimit,
		},
		Tracker: TrackerConfig{
			AutoUpdate: true,
			MaxItems:   DefaultTrackerMaxItems,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			BaseDir: "~/.tracker",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("TRACKER_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".tracker", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"tracker.config.json",
		".tracker/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Runtime != nil {
		if fc.Runtime.ContextTokenLimit != nil {
			cfg.Runtime.ContextTokenLimit = *fc.Runtime.ContextTokenLimit
		}
	}
	if fc.Tracker != nil {
		if fc.Tracker.AutoUpdate != nil {
			cfg.Tracker.AutoUpdate = *fc.Tracker.AutoUpdate
		}
		if fc.Tracker.MaxItems != nil {
			cfg.Tracker.MaxItems = *fc.Tracker.MaxItems
		}
		if fc.Tracker.SystemPrompt != nil {
			cfg.Tracker.SystemPrompt = *fc.Tracker.SystemPrompt
		}
	}
	if fc.Logging != nil {
		if fc.Logging.Debug != nil {
			cfg.Logging.Debug = *fc.Logging.Debug
		}
		if fc.Logging.Level != nil {
			cfg.Logging.Level = *fc.Logging.Level
		}
	}
	if fc.Storage != nil {
		if strings.TrimSpace(fc.Storage.BaseDir) != "" {
			cfg.Storage.BaseDir = fc.Storage.BaseDir
		}
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if len(override.Models) > 0 {
		base.Models = append([]string(nil), override.Models...)
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func normalize(cfg *Config) error {
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = Default().Provider.BaseURL
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = Default().Provider.Model
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = Default().Provider.TimeoutMS
	}
	cfg.Provider.Models = normalizeModelList(cfg.Provider.Models)
	if len(cfg.Provider.Models) == 0 {
		cfg.Provider.Models = append(cfg.Provider.Models, cfg.Provider.Model)
	}
	if !containsString(cfg.Provider.Models, cfg.Provider.Model) {
		cfg.Provider.Models = append([]string{cfg.Provider.Model}, cfg.Provider.Models...)
		cfg.Provider.Models = normalizeModelList(cfg.Provider.Models)
	}

	if cfg.Runtime.ContextTokenLimit <= 0 {
		cfg.Runtime.ContextTokenLimit = DefaultContextTokenLimit
	}
	if cfg.Tracker.MaxItems <= 0 {
		cfg.Tracker.MaxItems = DefaultTrackerMaxItems
	}
	cfg.Tracker.SystemPrompt = strings.TrimSpace(cfg.Tracker.SystemPrompt)

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = Default().Logging.Level
	}

	storageDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	if storageDir == "" {
		storageDir, err = expandPath(Default().Storage.BaseDir)
		if err != nil {
			return err
		}
	}
	cfg.Storage.BaseDir = storageDir
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("TRACKER_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TRACKER_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("TRACKER_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TRACKER_DATA_DIR")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("TRACKER_CONTEXT_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid TRACKER_CONTEXT_LIMIT: %q", v)
		}
		cfg.Runtime.ContextTokenLimit = n
	}
	if v := strings.TrimSpace(os.Getenv("TRACKER_DEBUG")); v != "" {
		cfg.Logging.Debug = v == "1" || strings.EqualFold(v, "true")
	}

	return cfg, normalize(&cfg)
}

func normalizeModelList(models []string) []string {
	out := make([]string, 0, len(models))
	seen := map[string]struct{}{}
	for _, m := range models {
		trimmed := strings.TrimSpace(m)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func containsString(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
