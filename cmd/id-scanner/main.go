package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/id-scanner/internal/engine"
	"github.com/zombor/id-scanner/internal/scan"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is fine; flags and the environment still apply
	_ = godotenv.Load()

	fs := ff.NewFlagSet("id-scanner")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "id-scanner.db", "Scan history database file path")
		engineType     = fs.StringLong("engine", "gemini", "Recognition engine: 'gemini', 'ollama' or 'tesseract'")
		licenseKey     = fs.StringLong("license-key", "", "Engine license key (Gemini API key, or Ollama bearer token)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
		tesseractLang  = fs.StringLong("tesseract-lang", "eng", "Tesseract language data used for the MRZ")
		engineLocation = fs.StringLong("engine-location", "", "Where the engine loads its resources from (optional)")
		workerLocation = fs.StringLong("worker-location", "", "Where the engine worker runs (optional)")
		scanTimeout    = fs.DurationLong("scan-timeout", 0, "Upper bound for a single scan, 0 for none")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("ID_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := scan.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Pick the recognition backend
	var backend engine.Backend
	switch *engineType {
	case "gemini":
		slog.Info("Using Gemini engine", "model", *geminiModel)
		backend = engine.NewGemini(*geminiModel)
	case "ollama":
		slog.Info("Using Ollama engine", "url", *ollamaURL, "model", *ollamaModel)
		backend = engine.NewOllama(*ollamaURL, *ollamaModel)
	case "tesseract":
		slog.Info("Using Tesseract engine", "language", *tesseractLang)
		backend = engine.NewTesseract(*tesseractLang)
	default:
		slog.Error("Invalid engine type", "type", *engineType, "valid", "gemini, ollama or tesseract")
		os.Exit(1)
	}

	orchestrator := scan.NewOrchestrator(engine.NewVision(backend), db, scan.Settings{
		License:        *licenseKey,
		EngineLocation: *engineLocation,
		WorkerLocation: *workerLocation,
		ScanTimeout:    *scanTimeout,
	})
	defer orchestrator.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load in the background so the page can show progress
	go func() {
		err := orchestrator.Initialize(ctx)
		switch {
		case errors.Is(err, scan.ErrUnsupported):
			slog.Error("Engine cannot run in this environment", "engine", *engineType)
		case err != nil:
			slog.Error("Failed to load engine", "engine", *engineType, "error", err)
		default:
			slog.Info("Engine ready", "engine", *engineType)
		}
	}()

	// Initialize server
	basicAuth := scan.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := scan.NewServer(orchestrator, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
