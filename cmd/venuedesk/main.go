package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/venuedesk/venuedesk/common/environment"
	"github.com/venuedesk/venuedesk/common/version"
	"github.com/venuedesk/venuedesk/internal/venuedesk/app"
)

func main() {
	setupLogging()

	fmt.Printf("venuedesk negotiation service\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	vd, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize venuedesk: %v\n", err)
		os.Exit(1)
	}
	defer vd.Stop()

	if err := vd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running venuedesk: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() (*app.Config, error) {
	catalogPath, err := environment.RequiredString("CATALOG_PATH")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		DatabasePath:         environment.StringOr("DATABASE_PATH", "./venuedesk.db"),
		CatalogPath:          catalogPath,
		HTTPAddr:             environment.StringOr("HTTP_ADDR", ":8080"),
		ApprovalWebhookURL:   environment.StringOr("APPROVAL_WEBHOOK_URL", ""),
		ApprovalWebhookToken: environment.StringOr("APPROVAL_WEBHOOK_TOKEN", ""),
		LLMAPIKey:            environment.StringOr("OPENAI_API_KEY", ""),
		LLMEndpoint:          environment.StringOr("LLM_ENDPOINT", ""),
		LLMModel:             environment.StringOr("LLM_MODEL", ""),
		LLMTimeout:           environment.DurationOr("LLM_TIMEOUT", 0),
		RateLimitPerMinute:   environment.IntOr("CLASSIFY_RATE_LIMIT", 0),
		DraftTTL:             environment.DurationOr("DRAFT_TTL", 0),
		SessionIdleTTL:       environment.DurationOr("SESSION_IDLE_TTL", 0),
	}, nil
}

// setupLogging configures the process-wide slog handler from LOG_FORMAT and
// LOG_LEVEL.
func setupLogging() {
	level := slog.LevelInfo
	switch environment.StringOr("LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if environment.StringOr("LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
