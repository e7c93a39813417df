package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-ocr/internal/receipt"
	"github.com/zombor/receipt-ocr/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// engineFactory builds an engine from configuration; it returns nil when the
// engine is not configured
type engineFactory func() scanning.Engine

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is fine; real environment variables still apply
	_ = godotenv.Load()

	fs := ff.NewFlagSet("receipt-ocr")
	var (
		port          = fs.IntLong("port", 8000, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipt-ocr.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./receipts", "Storage directory path")
		defaultEngine = fs.StringLong("engine", "baiduocr", "Default OCR engine: baiduocr, gemini, ollama or tesseract")
		languages     = fs.StringLong("languages", "ch_sim,en", "Comma separated recognition languages")
		baiduKey      = fs.StringLong("baidu-key", "", "Baidu OCR API key (or set BAIDU_OCR_API_KEY env var)")
		baiduSecret   = fs.StringLong("baidu-secret", "", "Baidu OCR secret key (or set BAIDU_OCR_SECRET_KEY env var)")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "", "Ollama API base URL, enables the ollama engine")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		useTesseract  = fs.BoolLong("tesseract", "Enable the local Tesseract engine (binary must be built with -tags tesseract)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_OCR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factories := map[string]engineFactory{
		"baiduocr": func() scanning.Engine {
			key := firstNonEmpty(*baiduKey, os.Getenv("BAIDU_OCR_API_KEY"))
			secret := firstNonEmpty(*baiduSecret, os.Getenv("BAIDU_OCR_SECRET_KEY"))
			if key == "" || secret == "" {
				return nil
			}
			return scanning.NewBaidu(key, secret)
		},
		"gemini": func() scanning.Engine {
			key := firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY"))
			if key == "" {
				return nil
			}
			return scanning.NewGemini(key, *geminiModel)
		},
		"ollama": func() scanning.Engine {
			if *ollamaURL == "" {
				return nil
			}
			return scanning.NewOllama(*ollamaURL, *ollamaModel)
		},
		"tesseract": func() scanning.Engine {
			if !*useTesseract {
				return nil
			}
			return newTesseract()
		},
	}

	registry, err := buildRegistry(ctx, factories, splitList(*languages), *defaultEngine)
	if err != nil {
		slog.Error("Failed to initialize OCR engines", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			slog.Warn("Failed to close OCR engines", "error", err)
		}
	}()

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	receiptService := receipt.NewService(db, registry, store)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutting down...")
}

// buildRegistry registers every configured engine in a stable order. Engines
// that fail to initialize are logged and skipped; at least one must succeed.
func buildRegistry(ctx context.Context, factories map[string]engineFactory, languages []string, defaultEngine string) (*scanning.Registry, error) {
	registry := scanning.NewRegistry()
	for _, name := range []string{"baiduocr", "gemini", "ollama", "tesseract"} {
		engine := factories[name]()
		if engine == nil {
			slog.Debug("OCR engine not configured", "engine", name)
			continue
		}
		// Register logs the failure; the service keeps running with the rest
		_ = registry.Register(ctx, name, engine, languages)
	}

	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no OCR engine could be initialized; configure at least one of baiduocr, gemini, ollama or tesseract")
	}

	if err := registry.SetDefault(defaultEngine); err != nil {
		slog.Warn("Default engine unavailable, falling back",
			"requested", defaultEngine,
			"default", registry.Default(),
		)
	}
	slog.Info("OCR engines ready", "engines", registry.Names(), "default", registry.Default())
	return registry, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
