package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/workledger/workledger/internal/app"
)

func main() {
	// serve blocks until SIGINT or SIGTERM cancels the context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Main(ctx, os.Args[1:]); err != nil {
		stop()
		log.Fatal(err)
	}
}
