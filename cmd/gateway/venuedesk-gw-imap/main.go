// venuedesk-gw-imap is a placeholder IMAP mail gateway for the venuedesk
// negotiation service.
//
// # Overview
//
// This binary demonstrates the mail gateway contract: it polls an IMAP
// mailbox for new client emails and forwards each one to the engine's HTTP
// API (POST /messages) as a normalised message envelope.  The booking
// identifier is derived from the email thread (References / In-Reply-To
// headers, falling back to the sender address for first contact).
//
// # PLACEHOLDER STATUS
//
// The IMAP polling loop is intentionally stubbed out.  The binary compiles,
// starts, validates its configuration, and then waits without connecting to
// any mail server.  This is sufficient to:
//
//   - Establish the gateway binary artefact and its deployment contract.
//   - Validate the engine integration path (POST /messages).
//   - Document the full configuration surface for a production build.
//
// A production implementation would use an IMAP client library (e.g.
// github.com/emersion/go-imap) to authenticate, watch for new messages with
// IMAP IDLE, and translate each message into the envelope below.
//
// # Configuration (environment variables)
//
//	VENUEDESK_URL    Base URL of the venuedesk HTTP API, e.g. http://localhost:8080 (required)
//	VENUEDESK_TOKEN  Bearer token for API authentication (optional)
//	GW_IMAP_HOST     IMAP server hostname, e.g. "imap.example.com" (required)
//	GW_IMAP_PORT     IMAP server port (default: "993" for TLS)
//	GW_IMAP_USER     IMAP account username (required)
//	GW_IMAP_PASSWORD IMAP account password (required)
//	GW_IMAP_MAILBOX  Mailbox/folder to watch (default: "INBOX")
//	GW_POLL_INTERVAL Poll interval for servers without IMAP IDLE (default: "60s")
//	LOG_FORMAT       "text" or "json" (default: "text")
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ─── Config ──────────────────────────────────────────────────────────────────

type config struct {
	EngineURL    string
	EngineToken  string
	IMAPHost     string
	IMAPPort     string
	IMAPUser     string
	IMAPPassword string
	IMAPMailbox  string
	PollInterval time.Duration
}

func loadConfig() (*config, error) {
	cfg := &config{
		EngineURL:    os.Getenv("VENUEDESK_URL"),
		EngineToken:  os.Getenv("VENUEDESK_TOKEN"),
		IMAPHost:     os.Getenv("GW_IMAP_HOST"),
		IMAPPort:     os.Getenv("GW_IMAP_PORT"),
		IMAPUser:     os.Getenv("GW_IMAP_USER"),
		IMAPPassword: os.Getenv("GW_IMAP_PASSWORD"),
		IMAPMailbox:  os.Getenv("GW_IMAP_MAILBOX"),
	}

	for _, req := range []struct{ name, val string }{
		{"VENUEDESK_URL", cfg.EngineURL},
		{"GW_IMAP_HOST", cfg.IMAPHost},
		{"GW_IMAP_USER", cfg.IMAPUser},
		{"GW_IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("required environment variable %s is not set", req.name)
		}
	}

	if cfg.IMAPPort == "" {
		cfg.IMAPPort = "993"
	}
	if cfg.IMAPMailbox == "" {
		cfg.IMAPMailbox = "INBOX"
	}

	pollStr := os.Getenv("GW_POLL_INTERVAL")
	if pollStr == "" {
		pollStr = "60s"
	}
	d, err := time.ParseDuration(pollStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GW_POLL_INTERVAL %q: %w", pollStr, err)
	}
	cfg.PollInterval = d

	return cfg, nil
}

// ─── Engine message envelope ──────────────────────────────────────────────────

// engineMessage is the envelope posted to POST /messages.  It mirrors the
// app package's request shape — reproduced here so the gateway has zero
// in-tree dependencies and can be built as a standalone artefact.
type engineMessage struct {
	BookingID string `json:"booking_id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
}

// postMessage sends one inbound email to the negotiation engine.
func postMessage(ctx context.Context, cfg *config, msg engineMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := cfg.EngineURL + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.EngineToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.EngineToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("engine returned HTTP %d for %s", resp.StatusCode, url)
	}

	return nil
}

// ─── Gateway loop (placeholder) ───────────────────────────────────────────────

// runGateway is the main polling loop.  In a production implementation this
// would authenticate to the IMAP server, watch for new messages using IMAP
// IDLE (RFC 2177), and call postMessage for each new email.  The placeholder
// loop simply sleeps and logs to demonstrate the lifecycle without requiring
// a live mail server.
//
// The function returns when ctx is cancelled (e.g. on SIGTERM).
func runGateway(ctx context.Context, cfg *config) {
	slog.Info("venuedesk-gw-imap started",
		"engine_url", cfg.EngineURL,
		"imap_host", cfg.IMAPHost,
		"imap_port", cfg.IMAPPort,
		"imap_user", cfg.IMAPUser,
		"mailbox", cfg.IMAPMailbox,
		"poll_interval", cfg.PollInterval,
		"placeholder", true,
	)
	slog.Warn("PLACEHOLDER: IMAP polling is not implemented; binary validates the deployment contract only")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("venuedesk-gw-imap shutting down")
			return
		case t := <-ticker.C:
			slog.Debug("poll tick (placeholder — no IMAP connection)",
				"tick", t.UTC().Format(time.RFC3339),
			)
			// Production implementation would:
			//   1. Connect to cfg.IMAPHost:cfg.IMAPPort using TLS
			//   2. Authenticate with cfg.IMAPUser / cfg.IMAPPassword
			//   3. SELECT cfg.IMAPMailbox
			//   4. SEARCH UNSEEN (or use IMAP IDLE for push notification)
			//   5. For each unseen email, derive the booking id from the
			//      thread headers and send:
			//      postMessage(ctx, cfg, engineMessage{
			//          BookingID: bookingID,
			//          Sender:    from,
			//          Message:   plainTextBody,
			//      })
		}
	}
}

// ─── Main ─────────────────────────────────────────────────────────────────────

func main() {
	// Configure structured logging.
	logLevel := slog.LevelInfo
	var logHandler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		logHandler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		logHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(logHandler))

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	runGateway(ctx, cfg)
}
