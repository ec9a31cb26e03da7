package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digestbot/internal/app"
)

func main() {
	var (
		cfgPath string
		daemon  bool
		hours   int
	)
	flag.StringVar(&cfgPath, "config", "", "path to config file (json or yaml); empty builds config from env and defaults")
	flag.BoolVar(&daemon, "daemon", false, "run as a long-lived service on the configured schedule")
	flag.IntVar(&hours, "hours", 0, "one-shot only: override digest.hours_back")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{}
	if !daemon {
		opts.HoursBack = hours
	}

	a, err := app.NewApp(cfgPath, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if !daemon {
		err := a.RunOnce(ctx)
		_ = a.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "run failed:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	// Wake on a signal or on a fatal supervisor error, whichever is first.
	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := app.StopSignal
	if a.Err() != nil {
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
