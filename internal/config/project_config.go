package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InitProjectConfigScaffold 在当前工作目录下初始化项目级配置模板（./.tracker/config.json）。
// InitProjectConfigScaffold initializes a project-level config scaffold
// (./.tracker/config.json) in the current working directory.
func InitProjectConfigScaffold() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get current working directory: %w", err)
	}

	dir := filepath.Join(cwd, ".tracker")
	path := filepath.Join(dir, "config.json")

	// 若项目已经有 ./.tracker/config.json，则尊重用户现有配置。
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("project config path is a directory: %s", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat project config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir .tracker: %w", err)
	}

	cfg := Default()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write project config: %w", err)
	}

	return nil
}

// WriteProviderModel 将 provider.model 写入项目配置（./.tracker/config.json）；目录不存在则创建
// WriteProviderModel writes provider.model to the project config
// (./.tracker/config.json); the directory is created if needed.
func WriteProviderModel(projectDir, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model is empty")
	}
	dir := filepath.Join(strings.TrimSpace(projectDir), ".tracker")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir .tracker: %w", err)
	}
	path := filepath.Join(dir, "config.json")

	raw := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		cleaned := stripJSONComments(data)
		if err := json.Unmarshal(cleaned, &raw); err != nil {
			return fmt.Errorf("parse project config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read project config: %w", err)
	}

	providerObj := map[string]json.RawMessage{}
	if existing, ok := raw["provider"]; ok {
		if err := json.Unmarshal(existing, &providerObj); err != nil {
			return fmt.Errorf("parse provider section: %w", err)
		}
	}
	modelJSON, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	providerObj["model"] = modelJSON
	providerJSON, err := json.Marshal(providerObj)
	if err != nil {
		return fmt.Errorf("marshal provider section: %w", err)
	}
	raw["provider"] = providerJSON

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write project config: %w", err)
	}
	return nil
}
