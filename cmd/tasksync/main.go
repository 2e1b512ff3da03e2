// Package main is the entry point for the tasksync CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tasksync/internal/cli"
	"tasksync/internal/commands"
)

func main() {
	// Cancelled on interrupt; serve shuts down gracefully and other commands
	// abort their backend calls.
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, cli.DefaultWorkerFactory)

	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
