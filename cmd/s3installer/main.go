package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mashiike/s3installer"
)

var version = "current"

func main() {
	s3installer.Version = version
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	var cli s3installer.CLI
	code := cli.Run(ctx)
	stop()
	os.Exit(code)
}
