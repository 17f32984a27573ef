// Copyright 2024 aicarousel Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

// Command aicarousel runs the multi-upstream AI chat gateway: it
// exposes OpenAI- and Anthropic-shaped HTTP surfaces backed by a
// round-robin dispatcher across whichever upstream providers have a
// configured API key.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/thotenn/aicarousel/internal/database"
	"github.com/thotenn/aicarousel/internal/dispatch"
	"github.com/thotenn/aicarousel/internal/format"
	"github.com/thotenn/aicarousel/internal/httpapi"
	"github.com/thotenn/aicarousel/internal/httpauth"
	"github.com/thotenn/aicarousel/internal/migration"
	"github.com/thotenn/aicarousel/internal/modelsconfig"
	"github.com/thotenn/aicarousel/internal/providerstore"
	"github.com/thotenn/aicarousel/internal/registry"
	"github.com/thotenn/aicarousel/internal/server"
	"github.com/thotenn/aicarousel/internal/upstream"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintln(os.Stderr, "aicarousel: serve:", err)
			os.Exit(1)
		}
	case "migrate":
		if err := runMigrate(); err != nil {
			fmt.Fprintln(os.Stderr, "aicarousel: migrate:", err)
			os.Exit(1)
		}
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "aicarousel: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`aicarousel - multi-upstream AI chat gateway

Usage:
  aicarousel serve     start the HTTP gateway
  aicarousel migrate    apply pending database migrations
  aicarousel version    print the build version
  aicarousel help       show this message`)
}

func printVersion() {
	fmt.Println("aicarousel", version)
}

// providerDescriptors lists every upstream kind the gateway knows how
// to build an adapter for, each with the env var that holds its API
// key. A provider
// whose env var is unset is simply invisible to the registry; no
// descriptor needs to be removed to "disable" it.
func providerDescriptors() []registry.ProviderDescriptor {
	return []registry.ProviderDescriptor{
		{Key: "cerebras", Name: "Cerebras", APIKeyEnvName: "CEREBRAS_API_KEY"},
		{Key: "groq", Name: "Groq", APIKeyEnvName: "GROQ_API_KEY"},
		{Key: "openrouter", Name: "OpenRouter", APIKeyEnvName: "OPENROUTER_API_KEY"},
		{Key: "gemini", Name: "Gemini", APIKeyEnvName: "GEMINI_API_KEY"},
		// A local server has no fixed API key, so its enablement signal
		// is the base URL env var instead: it's active once an operator
		// points LOCAL_BASE_URL at a running Ollama/LM Studio/vLLM instance.
		{Key: "local", Name: "Local", APIKeyEnvName: "LOCAL_BASE_URL"},
	}
}

// providerBaseURLs gives the wire endpoint for every OpenAI-compatible
// descriptor above; Gemini uses GoogleAdapter's own default and needs
// no entry here.
var providerBaseURLs = map[string]string{
	"cerebras":   "https://api.cerebras.ai",
	"groq":       "https://api.groq.com/openai",
	"openrouter": "https://openrouter.ai/api",
}

// buildAdapter constructs the upstream.Adapter for one (providerKey,
// model) pair, dispatching by provider kind to a concrete adapter
// constructor.
func buildAdapter(logger *zap.Logger) upstream.Builder {
	return func(providerKey, model string) (upstream.Adapter, error) {
		switch providerKey {
		case "gemini":
			return upstream.NewGoogleAdapter(upstream.GoogleConfig{
				ProviderName: "gemini",
				APIKey:       os.Getenv("GEMINI_API_KEY"),
				Model:        model,
			}, logger), nil
		case "cerebras", "groq", "openrouter":
			envName := ""
			for _, d := range providerDescriptors() {
				if d.Key == providerKey {
					envName = d.APIKeyEnvName
				}
			}
			return upstream.NewOpenAICompatAdapter(upstream.OpenAICompatConfig{
				ProviderName: providerKey,
				APIKey:       os.Getenv(envName),
				BaseURL:      providerBaseURLs[providerKey],
				Model:        model,
			}, logger), nil
		case "local":
			return upstream.NewLocalHTTPAdapter(upstream.LocalHTTPConfig{
				ProviderName: "local",
				BaseURL:      os.Getenv("LOCAL_BASE_URL"),
				APIKey:       os.Getenv("LOCAL_API_KEY"),
				Model:        model,
			}, logger), nil
		default:
			return nil, fmt.Errorf("main: unknown provider kind %q", providerKey)
		}
	}
}

func dataDir() (string, error) {
	dir := os.Getenv("AICAROUSEL_DATA_DIR")
	if dir == "" {
		dir = "./data"
	}
	return dir, os.MkdirAll(dir, 0o755)
}

// initLogger builds a zap logger, console-encoded when
// AICAROUSEL_LOG_FORMAT is "console" and JSON-encoded otherwise.
func initLogger() (*zap.Logger, error) {
	encoding := "json"
	if os.Getenv("AICAROUSEL_LOG_FORMAT") == "console" {
		encoding = "console"
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("main: build logger: %w", err)
	}
	return logger, nil
}

func openDatabase(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("main: open database %s: %w", dbPath, err)
	}
	return db, nil
}

func applyMigrations(dbPath string, logger *zap.Logger) error {
	migrator, err := migration.NewMigrator(migration.Config{DatabasePath: dbPath})
	if err != nil {
		return err
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil {
		return err
	}

	info, err := migrator.Info()
	if err == nil {
		logger.Info("migrations applied",
			zap.Uint("version", info.CurrentVersion),
			zap.Int("applied", info.AppliedMigrations),
			zap.Int("pending", info.PendingMigrations),
		)
	}
	return nil
}

func runMigrate() error {
	loadDotenv()
	logger, err := initLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dir, err := dataDir()
	if err != nil {
		return err
	}
	return applyMigrations(filepath.Join(dir, "aicarousel.db"), logger)
}

// loadDotenv parses a .env file at the repo root if present. A
// missing file is not an error: env vars set by the host process
// still take effect.
func loadDotenv() {
	_ = godotenv.Load()
}

// seedDefaultModelsConfig writes a minimal starter ModelsConfig
// document for every hosted provider kind (cerebras, groq, openrouter,
// gemini) if none exists yet, so a fresh install boots with the
// registry able to see a model list for those providers without
// requiring an admin round-trip first. The local provider is not
// seeded and stays inactive until a models entry is added for it.
func seedDefaultModelsConfig(store *modelsconfig.Store) error {
	snap, err := store.Read()
	if err != nil {
		return err
	}
	if len(snap) > 0 {
		return nil
	}

	defaults := modelsconfig.Snapshot{
		"cerebras":   {Default: "llama3.1-8b", EnableFallback: true, Models: []string{"llama3.1-8b", "llama3.1-70b"}},
		"groq":       {Default: "llama-3.1-8b-instant", EnableFallback: true, Models: []string{"llama-3.1-8b-instant", "llama-3.3-70b-versatile"}},
		"openrouter": {Default: "meta-llama/llama-3.1-8b-instruct", EnableFallback: true, Models: []string{"meta-llama/llama-3.1-8b-instruct"}},
		"gemini":     {Default: "gemini-1.5-flash", EnableFallback: true, Models: []string{"gemini-1.5-flash", "gemini-1.5-pro"}},
	}
	return store.Save(defaults)
}

func runServe() error {
	loadDotenv()

	logger, err := initLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dir, err := dataDir()
	if err != nil {
		return err
	}
	dbPath := filepath.Join(dir, "aicarousel.db")

	if err := applyMigrations(dbPath, logger); err != nil {
		return fmt.Errorf("main: apply migrations: %w", err)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	credentials := providerstore.NewCredentialStore(pool.DB())
	settings := providerstore.NewProviderSettingsStore(pool.DB())
	models := modelsconfig.NewStore(filepath.Join(dir, "models.json"))
	if err := seedDefaultModelsConfig(models); err != nil {
		return fmt.Errorf("main: seed models config: %w", err)
	}

	reg := registry.New(providerDescriptors(), settings, models)
	chatHandler := dispatch.New(reg, buildAdapter(logger), logger)

	mux := httpapi.NewMux(httpapi.Deps{
		Handler:   chatHandler,
		Auth:      httpauth.New(credentials, logger),
		OpenAI:    format.NewOpenAITranslator(logger),
		Anthropic: format.NewAnthropicTranslator(logger),
		Logger:    logger,
	})

	cfg := server.DefaultConfig()
	cfg.Addr = ":" + port()

	mgr := server.NewManager(mux, cfg, logger)
	if err := mgr.Start(); err != nil {
		return err
	}

	logger.Info("aicarousel gateway started", zap.String("addr", cfg.Addr))
	mgr.WaitForShutdown()
	return nil
}

func port() string {
	if p := os.Getenv("PORT"); p != "" {
		if _, err := strconv.Atoi(p); err == nil {
			return p
		}
	}
	return "7123"
}
