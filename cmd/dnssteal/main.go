// SPDX-License-Identifier: GPL-3.0-or-later

// dnssteal listens for DNS queries carrying file fragments, reassembles
// the files and pushes them to the connected viewers.
//
// Usage:
//
//	dnssteal [flags] [listen-addr]
//
// Run with --help for the list of flags. Every flag can also be set
// using the environment (see internal/config) or a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/bassosimone/dnssteal"
	"github.com/bassosimone/dnssteal/internal/config"
	"github.com/bassosimone/dnssteal/internal/metrics"
	"github.com/bassosimone/dnssteal/internal/storage"
	"github.com/bassosimone/dnssteal/internal/viewer"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.New(reg)
	if err != nil {
		return err
	}

	// 2. sinks
	hub := viewer.NewHub(cfg.RecentFiles, logger)
	defer hub.Close()
	sinks := dnssteal.MultiSink{hub}
	if cfg.DumpFiles {
		if err := os.MkdirAll(cfg.DumpDir, 0755); err != nil {
			return err
		}
		sinks = append(sinks, &dnssteal.DiskSink{Dir: cfg.DumpDir})
	}
	if cfg.MinIO.Endpoint != "" {
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		sinks = append(sinks, storage.NewObjectSink(objStore))
	}

	// 3. engine
	store := dnssteal.NewStore()

	sweeper := dnssteal.NewSweeper(store, sinks)
	sweeper.IdleThreshold = cfg.IdleThreshold
	sweeper.Interval = cfg.SweepInterval
	sweeper.Logger = logger
	sweeper.Observer = observer

	responder := dnssteal.NewResponder(dnssteal.NewDecoder(cfg.Zone), store)
	responder.Logger = logger
	responder.Observer = observer

	server := dnssteal.NewServer(responder)
	server.Logger = logger

	// 4. run everything until we are interrupted
	var wg sync.WaitGroup
	errch := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	if cfg.HTTPAddr != "" {
		app := viewer.New(hub, reg, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			hub.Close()
			_ = app.Shutdown()
		}()
		go func() {
			logger.Info("viewer listening", slog.String("addr", cfg.HTTPAddr))
			if err := app.Listen(cfg.HTTPAddr); err != nil {
				errch <- fmt.Errorf("viewer: %w", err)
			}
		}()
	}

	go func() {
		errch <- server.ListenAndServe(ctx, cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errch:
	}
	stop()
	wg.Wait()
	return err
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalid, err.Error())
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
