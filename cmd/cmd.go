// Package cmd provides the CLI commands for ragline.
//
// Commands:
//   - serve: HTTP gateway (knowledge base, research, channel webhooks)
//   - version: build information
//
// Signal handling and graceful shutdown are implemented for serve via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ragline/ragline/internal/log"
)

// Execute is the main entry point for the ragline CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("ragline - multi-channel RAG chatbot gateway")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ragline serve      Start the HTTP gateway (default: 0.0.0.0:8000)")
	fmt.Println("  ragline --version  Show version information")
	fmt.Println("  ragline --help     Show this help")
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Println("  /upload, /query, /stats          Knowledge base API")
	fmt.Println("  /research/url, /research/topic   Web research")
	fmt.Println("  /whatsapp/webhook, /sms/webhook  Twilio messaging")
	fmt.Println("  /voice/webhook, /voice/process   Twilio voice")
	fmt.Println("  /slack/events                    Slack Events API (when configured)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  HUGGINGFACE_API_TOKEN  Required: inference router API token")
	fmt.Println("  SLACK_BOT_TOKEN        Optional: enables the Slack channel")
	fmt.Println("  SLACK_SIGNING_SECRET   Optional: enables the Slack channel")
	fmt.Println("  PORT                   Optional: listen port (default: 8000)")
	fmt.Println("  DEBUG                  Optional: enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/ragline/ragline")
}
