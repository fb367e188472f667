package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"Leviosa/backend/go/internal/config"
	"Leviosa/backend/go/internal/docparse_service/app"
	"Leviosa/backend/go/internal/mcp"
	"Leviosa/backend/go/pkg/logger"
)

// STDIO transport (default)
//go run ./backend/go/cmd/docparse_mcp
//go run ./backend/go/cmd/docparse_mcp -transport=stdio
//
// SSE transport on port 8085
//go run ./backend/go/cmd/docparse_mcp -transport=sse -port=8085
//
// StreamableHTTP transport on port 9000
//go run ./backend/go/cmd/docparse_mcp -transport=httpstream -port=9000

func main() {
	// Define command-line flags
	transport := flag.String("transport", "stdio", "Transport method: stdio, sse, or httpstream")
	port := flag.String("port", "8085", "Port for HTTP-based transports (sse, httpstream)")
	configPath := flag.String("config", os.Getenv("DOCPARSE_CONFIG"), "Path to the YAML configuration")
	flag.Parse()

	if *configPath == "" {
		*configPath = "backend/go/internal/config/config.yaml"
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)
	// stdout carries the MCP protocol on the stdio transport.
	logger.SetOutput(os.Stderr)
	log.SetOutput(os.Stderr)
	toolLogger := logger.New("DocParseMCP", "", "")

	components, err := app.Build(context.Background(), cfg, toolLogger)
	if err != nil {
		log.Fatalf("Failed to build service components: %v", err)
	}
	defer components.Close()

	// Create a new MCP server
	s := server.NewMCPServer(
		"Leviosa",
		cfg.App.Version,
		server.WithToolCapabilities(false),
	)
	mcp.NewTools(components.Service).Register(s)

	// Start server based on transport selection
	switch *transport {
	case "sse":
		log.Printf("Starting Leviosa MCP server with SSE transport on port %s", *port)
		sseServer := server.NewSSEServer(s)
		if err := sseServer.Start(":" + *port); err != nil {
			log.Fatalf("SSE server error: %v", err)
		}
	case "httpstream":
		log.Printf("Starting Leviosa MCP server with StreamableHTTP transport on port %s", *port)
		httpServer := server.NewStreamableHTTPServer(s)
		if err := httpServer.Start(":" + *port); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	case "stdio":
		log.Println("Starting Leviosa MCP server with STDIO transport")
		if err := server.ServeStdio(s); err != nil {
			log.Fatalf("STDIO server error: %v", err)
		}
	default:
		log.Fatalf("Unknown transport: %s. Use stdio, sse, or httpstream", *transport)
	}
}
