package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tracker/internal/config"
	"tracker/internal/i18n"
	"tracker/internal/logging"
	"tracker/internal/orchestrator"
	"tracker/internal/provider"
	"tracker/internal/storage"

	"github.com/chzyer/readline"
)

func main() {
	var (
		configPath string
		resumeID   string
		useTUI     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.StringVar(&resumeID, "resume", "", "Session ID to resume")
	flag.BoolVar(&useTUI, "tui", false, "Run the full-screen TUI instead of the REPL")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Debug, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	baseDir := cfg.Storage.BaseDir
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "init data dir failed: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(baseDir, "tracker.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init storage failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// 旧版逐文件 JSON 存储只迁移一次，之后目录为空是常态。
	// Legacy per-file JSON sessions migrate once; an empty dir afterwards is
	// the normal case.
	if migrated, err := storage.MigrateFromJSON(filepath.Join(baseDir, "sessions"), store); err != nil {
		fmt.Fprintf(os.Stderr, "migrate legacy sessions failed: %v\n", err)
	} else if migrated > 0 {
		fmt.Printf("migrated %d legacy session(s) into sqlite\n", migrated)
	}

	providerClient := provider.NewOpenAIProvider(provider.OpenAIConfig{
		BaseURL:   cfg.Provider.BaseURL,
		APIKey:    cfg.Provider.APIKey,
		Model:     cfg.Provider.Model,
		TimeoutMS: cfg.Provider.TimeoutMS,
	})

	cwd, _ := os.Getwd()
	orch := orchestrator.New(providerClient, orchestrator.Options{
		Store:             store,
		Log:               log,
		SystemPrompt:      cfg.Tracker.SystemPrompt,
		ContextTokenLimit: cfg.Runtime.ContextTokenLimit,
		MaxItems:          cfg.Tracker.MaxItems,
		AutoUpdate:        cfg.Tracker.AutoUpdate,
		ConfigBasePath:    cwd,
		Models:            cfg.Provider.Models,
	})

	meta, err := openSession(orch, resumeID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open session failed: %v\n", err)
		os.Exit(1)
	}

	if useTUI {
		if err := runTUI(orch, meta.ID); err != nil {
			fmt.Fprintf(os.Stderr, "tui failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runREPL(orch, baseDir, meta)
}

func openSession(orch *orchestrator.Orchestrator, resumeID string) (storage.SessionMeta, error) {
	if resumeID != "" {
		return orch.ResumeSession(resumeID)
	}
	return orch.NewSession()
}

func runREPL(orch *orchestrator.Orchestrator, baseDir string, meta storage.SessionMeta) {
	inputReader, inputErr := newLineInput(filepath.Join(baseDir, "repl.history"))
	if inputErr != nil {
		fmt.Fprintf(os.Stderr, "line editor unavailable, fallback to basic input: %v\n", inputErr)
	}
	defer inputReader.Close()

	fmt.Println(i18n.T("startup.welcome", baseDir))
	fmt.Println(i18n.T("startup.session", meta.ID, orch.CurrentModel()))
	printREPLCommands(os.Stdout)

	for {
		line, err := inputReader.ReadLine("> ")
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				fmt.Fprintln(os.Stdout)
				continue
			case errors.Is(err, io.EOF):
				fmt.Fprintln(os.Stderr, "\nexit")
				return
			default:
				fmt.Fprintf(os.Stderr, "read input failed: %v\n", err)
				return
			}
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "/exit" || input == "/quit" {
			fmt.Println(i18n.T("session.saved"))
			return
		}

		if _, err := orch.RunInput(context.Background(), input, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, i18n.T("error.provider", err.Error()))
		}
	}
}
