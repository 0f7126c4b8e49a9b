package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dapp-core/cmd/quantum-dapp/cmd"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	log.Info("quantum-dapp",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx, cmd.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate})
	if err != nil {
		log.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
