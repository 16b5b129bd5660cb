// Blogsync is a command-line client for the blog API. It logs in with the
// configured credentials, runs one command against the cached client and
// prints the result as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/blogsync.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	serve := flag.Bool("serve", false, "keep the ops server running after the command until interrupted")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: blogsync [flags] <command> [args]\n\ncommands:\n%s\nflags:\n", commandHelp())
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("blogsync", version)
		os.Exit(0)
	}
	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	opts := options{configPath: *configPath, args: flag.Args(), serve: *serve}
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
