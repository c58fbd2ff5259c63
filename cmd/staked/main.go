package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stakeledger/services/staked"
)

func main() {
	configPath := flag.String("config", "./staked.toml", "path to the staked configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := staked.Run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "staked: %v\n", err)
		os.Exit(1)
	}
}
