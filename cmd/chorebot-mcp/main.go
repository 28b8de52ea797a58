package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/chorebot/internal/app"
	"github.com/vthunder/chorebot/internal/config"
	"github.com/vthunder/chorebot/internal/mcp/tools"
)

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[chorebot-mcp] ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// The tool server never calls a language model
	cfg.LLMProvider = config.ProviderNone

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	s := server.NewMCPServer(
		"chorebot",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	tools.RegisterAll(s, &tools.Dependencies{
		Resolver: a.Resolver,
		Ingester: a.Ingester,
		Reflex:   a.Reflex,
	})

	log.Printf("Serving tasks from %s", a.DB.Path())
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
