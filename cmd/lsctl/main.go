package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vapeshed/cis-bricks/internal/commands"
)

var version = "dev" // Will be set during build

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, commands.Options{Version: version}, os.Args[1:])
	code := commands.ExitCode(ctx, err)
	stop()
	os.Exit(code)
}
