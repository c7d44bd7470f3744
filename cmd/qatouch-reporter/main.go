package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/qatouch-reporter/internal/cmd"
	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0"
var version = ""

func main() {
	os.Exit(run())
}

func run() int {
	if version != "" {
		qatouch.Version = version
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		// cobra has already printed the error
		return 1
	}
	return 0
}
