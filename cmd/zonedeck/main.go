// zonedeck browses and edits the DNS records of a provider account, either
// interactively or through scripting subcommands.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"gitlab.bluewillows.net/root/zonedeck/internal/cli"
	"gitlab.bluewillows.net/root/zonedeck/internal/metrics"
)

// Version is set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	cli.Version = Version
	metrics.SetBuildInfo(Version, runtime.Version())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.Options{}, os.Args[1:])
	stop()
	os.Exit(code)
}
