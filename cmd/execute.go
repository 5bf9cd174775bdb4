// Package cmd contains the MedChat CLI: command routing, server wiring and
// lifecycle. main.go stays a minimal entry point.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/medchat/medchat/internal/config"
	"github.com/medchat/medchat/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the MedChat CLI.
//
// Design: following the pattern of kubectl, hugo and other standard Go CLI
// tools, all application logic lives in the cmd package.
func Execute() error {
	// version and help work even when configuration is invalid.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersionInfo()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		}
	}

	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		return runServe(cfg, logger)
	case "migrate":
		return runMigrate(cfg, logger)
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", command)
	}
}

// initLogger builds the structured logger. DEBUG (any value) enables debug
// level; logs go to stderr as JSON.
func initLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: true})
}

func printVersionInfo() {
	fmt.Printf("MedChat v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Println("MedChat - retrieval-augmented question answering over medical literature")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  medchat              Start the HTTP API server (default)")
	fmt.Println("  medchat serve        Start the HTTP API server")
	fmt.Println("  medchat migrate      Run database migrations and exit")
	fmt.Println("  medchat version      Show version information")
	fmt.Println("  medchat help         Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  MEDCHAT_PROVIDER           Inference provider: modelserver (default) or gemini")
	fmt.Println("  MEDCHAT_MODEL_SERVER_URL   Model server base URL")
	fmt.Println("  MEDCHAT_LISTEN_ADDR        HTTP listen address")
	fmt.Println("  POSTGRES_PASSWORD          Database password")
	fmt.Println("  DATABASE_URL               Full database URL (overrides postgres_* settings)")
	fmt.Println("  GEMINI_API_KEY             Required with the gemini provider")
	fmt.Println("  DEBUG                      Enable debug logging")
}
