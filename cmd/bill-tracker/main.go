package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/bill-tracker/internal/bill"
	"github.com/zombor/bill-tracker/internal/config"
	"github.com/zombor/bill-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// defaultRegistryPath keeps the registry in the user's cache directory
func defaultRegistryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "bill-tracker", "registry.db")
}

// run parses args, processes a batch or serves the API, and returns the exit code.
// Everything opened here is closed before it returns.
func run(args []string, stdout io.Writer) int {
	// Check for version flag before parsing other flags
	for _, arg := range args {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Fprintln(stdout, version)
			return 0
		}
	}

	fs := ff.NewFlagSet("bill-tracker")
	var (
		envFile     = fs.StringLong("env-file", config.DefaultEnvFile, "File holding OPENAI_API_KEY")
		apiKeyFlag  = fs.StringLong("api-key", "", "Inference API key (or set OPENAI_API_KEY)")
		saveKey     = fs.BoolLong("save-key", "Store --api-key in the env file for later runs")
		scannerType = fs.StringLong("scanner", "openai", "Scanner type: 'openai', 'gemini' or 'ollama'")
		openAIURL   = fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI API base URL")
		openAIModel = fs.StringLong("openai-model", "gpt-4o", "OpenAI model name")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		timeout     = fs.DurationLong("timeout", 60*time.Second, "Timeout for each inference call")
		outDir      = fs.StringLong("out", ".", "Directory the report is saved to")
		registryDB  = fs.StringLong("registry", defaultRegistryPath(), "Report registry database path; it is locked while a run is active, so concurrent runs need separate paths")
		port        = fs.IntLong("port", 0, "Serve the HTTP API on this port instead of processing arguments")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("BILL_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	if *saveKey {
		if err := config.SaveAPIKey(*envFile, *apiKeyFlag); err != nil {
			slog.Error("Failed to save API key", "file", *envFile, "error", err)
			return 1
		}
		slog.Info("API key saved", "file", *envFile)
	}

	apiKey, err := config.ResolveAPIKey(*apiKeyFlag, *envFile)
	if err != nil {
		slog.Error("Failed to load API key", "file", *envFile, "error", err)
		return 1
	}

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "openai":
		slog.Info("Initializing OpenAI scanner...", "url", *openAIURL, "model", *openAIModel)
		scanner, err = scanning.NewOpenAI(scanning.OpenAIConfig{
			BaseURL: *openAIURL,
			Model:   *openAIModel,
			Timeout: *timeout,
		})
	case "gemini":
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(*geminiModel, *timeout)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel, *timeout)
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "openai, gemini or ollama")
		return 1
	}
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
		return 1
	}
	defer scanner.Close()

	slog.Info("Initializing report registry...", "path", *registryDB)
	if err := os.MkdirAll(filepath.Dir(*registryDB), 0700); err != nil {
		slog.Error("Failed to create registry directory", "error", err)
		return 1
	}
	registry, err := bill.NewBoltRegistry(*registryDB)
	if err != nil {
		if errors.Is(err, bill.ErrRegistryLocked) {
			fmt.Fprintln(os.Stderr, "error: another bill-tracker run is using the registry; pass a different --registry")
		}
		slog.Error("Failed to initialize report registry", "error", err)
		return 1
	}
	defer registry.Close()

	// Reports from earlier runs that exited without cleaning up
	if err := registry.Release(); err != nil {
		slog.Warn("Failed to release leftover reports", "error", err)
	}
	defer func() {
		if err := registry.Release(); err != nil {
			slog.Warn("Failed to release reports", "error", err)
		}
	}()

	service := bill.NewService(scanner)

	if *port > 0 {
		return serve(service, registry, bill.ServerConfig{
			APIKey: apiKey,
			BasicAuth: bill.BasicAuth{
				Username: *authUser,
				Password: *authPass,
			},
		}, *port)
	}
	return process(service, registry, fs.GetArgs(), apiKey, *outDir, stdout)
}

// process runs one batch over the command line arguments and saves the report to outDir
func process(service *bill.Service, registry bill.ReportRegistry, paths []string, apiKey, outDir string, stdout io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := service.Run(ctx, paths, apiKey)
	switch {
	case errors.Is(err, bill.ErrNoFiles):
		fmt.Fprintln(os.Stderr, "usage: bill-tracker [flags] <image>...")
		return 2
	case errors.Is(err, bill.ErrMissingCredentials):
		fmt.Fprintf(os.Stderr, "error: API key required. Pass --api-key, set %s, or run once with --save-key\n", config.APIKeyVar)
		return 1
	case err != nil:
		slog.Error("Batch failed", "error", err)
		return 1
	}

	fmt.Fprintf(stdout, "%d files submitted\n", result.Submitted)
	fmt.Fprintf(stdout, "%d successfully extracted\n", result.Extracted())
	for _, f := range result.Failures() {
		fmt.Fprintf(stdout, "  %s: %s (%s)\n", f.Filename, f.Message(), f.Kind)
	}

	if result.Extracted() == 0 {
		return 0
	}

	reportPath, err := bill.WriteReport(result, "")
	if err != nil {
		slog.Error("Failed to create report", "error", err)
		return 1
	}
	entry, err := registry.Track(reportPath, result)
	if err != nil {
		os.Remove(reportPath)
		slog.Error("Failed to track report", "error", err)
		return 1
	}
	defer registry.Remove(entry.ID)

	store, err := bill.NewLocalStorage(outDir)
	if err != nil {
		slog.Error("Failed to initialize output directory", "error", err)
		return 1
	}
	name := fmt.Sprintf("bills-%s.xlsx", result.FinishedAt.Format("20060102-150405"))
	saved, err := bill.PersistReport(store, reportPath, name)
	if err != nil {
		slog.Error("Failed to save report", "error", err)
		return 1
	}

	fmt.Fprintf(stdout, "Report saved to %s\n", saved)
	return 0
}

// serve runs the HTTP API until interrupted
func serve(service *bill.Service, registry bill.ReportRegistry, cfg bill.ServerConfig, port int) int {
	server := bill.NewServer(service, registry, cfg)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", port)
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if cfg.BasicAuth.Username != "" || cfg.BasicAuth.Password != "" {
		slog.Info("Basic auth enabled", "user", cfg.BasicAuth.Username)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		slog.Info("Shutting down...")
		return 0
	case err := <-errChan:
		slog.Error("Server error", "error", err)
		return 1
	}
}
