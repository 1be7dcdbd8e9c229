package main

import (
	"context"
	"os/signal"
	"syscall"

	skillswap "github.com/skillswap/skillswap/app"
)

func main() {
	ctx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	app := skillswap.New(ctx, nil)
	app.Start()
}
