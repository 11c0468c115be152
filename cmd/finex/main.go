package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"finextract/internal/cli"
	"finextract/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return cli.NewRootCommand(config.Load).ExecuteContext(ctx)
}
