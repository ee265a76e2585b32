package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/livereload/config"
	"github.com/magdyamr542/livereload/execer"
	"github.com/magdyamr542/livereload/notifier"
	"github.com/magdyamr542/livereload/reloader"
	"github.com/magdyamr542/livereload/watchset"
)

const (
	exitOK    = 0
	exitError = 1
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, output io.Writer) int {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "live-reload",
		Level:  hclog.Info,
		Output: output,
		Color:  hclog.AutoColor,
	})

	flags := flag.NewFlagSet("livereload", flag.ContinueOnError)
	flags.SetOutput(output)
	interval := flags.String("interval", "", "Time between two checks of the watched files, e.g. '50ms'.")
	logLevel := flags.String("loglevel", "", "The log level: TRACE, DEBUG, INFO, WARN or ERROR.")
	command := flags.String("cmd", "", "The command launching the app file, e.g. 'python3 -u'.\n"+
		"This is a space separated list. The app file is executed directly when empty.")
	noNotify := flags.Bool("no-notify", false, "Don't use filesystem notifications, only poll.")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: livereload [flags] <app file | descriptor.json|yaml|toml>\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}

	target := strings.TrimSpace(flags.Arg(0))
	if target == "" {
		logger.Info("You have to specify a file as argument")
		flags.Usage()
		return exitOK
	}

	// Build the config
	c := config.ForTarget(target)
	if config.IsDescriptor(target) {
		parsed, err := config.ParseFromFile(target)
		if err != nil {
			logger.Error("Can't read the descriptor", "file", target, "error", err)
			return exitError
		}
		c = parsed
	}

	if *interval != "" {
		c.PollInterval = *interval
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}
	if cmd := strings.Fields(*command); len(cmd) > 0 {
		c.Command = cmd
	}
	if *noNotify {
		notify := false
		c.Notify = &notify
	}

	if err := c.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		return exitError
	}
	logger.SetLevel(hclog.LevelFromString(c.LogLevel))

	watchSet, err := watchset.Build(c, logger)
	if err != nil {
		logger.Error("Can't build the watch set", "error", err)
		return exitError
	}
	for _, p := range watchSet {
		logger.Debug("Will watch", "file", p)
	}

	// Stop on interruption.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []reloader.Option{reloader.WithPollInterval(c.Interval())}
	if c.NotifyEnabled() {
		opts = append(opts, reloader.WithNotifier(notifier.New(logger)))
	}

	exc := execer.New(c.LaunchArgv(), logger)
	r := reloader.New(watchSet, exc, logger, opts...)

	logger.Info("Live reload started", "app", c.AppFile, "files", len(watchSet))
	result, err := r.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("Got signal to stop, live reload is disabled", "cycles", result.Cycles)
		return exitOK
	case err != nil:
		logger.Error("Can't run the app", "error", err)
		return exitError
	}

	logger.Debug("Live reload finished", "cycles", result.Cycles, "outcome", result.Outcome)
	return exitOK
}
