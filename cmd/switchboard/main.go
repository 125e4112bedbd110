package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/lk2023060901/switchboard-go/application"
	"github.com/lk2023060901/switchboard-go/pkg/log"
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(log.S().Infof)); err != nil {
		log.S().Warnf("set GOMAXPROCS failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.New(os.Args[1:]).Run(ctx); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "switchboard: %v\n", err)
		os.Exit(1)
	}
}
