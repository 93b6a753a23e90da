package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"wikiwatch/internal/app"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: wikiwatch [-config path] <command>

commands:
  run                                        run the relay service
  add-source <base-url>                      register a source
  add-channel <source-id> <kind> <url> [filter]
                                             add a delivery channel
                                             (kind: discord|telegram,
                                              filter: bitmask edit=1 log=2 post=4, default 7)
`)
	os.Exit(2)
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	switch args[0] {
	case "run":
		run(a)
	case "add-source":
		addSource(a, args[1:])
	case "add-channel":
		addChannel(a, args[1:])
	default:
		usage()
	}
}

func run(a *app.App) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
	}
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func addSource(a *app.App, args []string) {
	if len(args) != 1 {
		usage()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := a.Store().AddSource(ctx, args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "add-source:", err)
		os.Exit(1)
	}
	fmt.Printf("source %d: %s\n", id, args[0])
}

func addChannel(a *app.App, args []string) {
	if len(args) < 3 || len(args) > 4 {
		usage()
	}
	sourceID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "add-channel: bad source id:", err)
		os.Exit(1)
	}
	filter := uint64(7)
	if len(args) == 4 {
		filter, err = strconv.ParseUint(args[3], 10, 8)
		if err != nil || filter == 0 {
			fmt.Fprintln(os.Stderr, "add-channel: filter must be a bitmask 1-7")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := a.Store().AddChannel(ctx, sourceID, args[1], args[2], uint8(filter))
	if err != nil {
		fmt.Fprintln(os.Stderr, "add-channel:", err)
		os.Exit(1)
	}
	fmt.Printf("channel %d: %s for source %d\n", id, args[1], sourceID)
}
