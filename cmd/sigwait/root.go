// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/go-uiharness/eventloop"
	"github.com/joeycumines/go-uiharness/fswatch"
	"github.com/joeycumines/go-uiharness/sigwait"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	exitEvent   = 0
	exitTimeout = 1
	exitError   = 2

	envPrefix = `SIGWAIT`
)

// errTimedOut is returned by commands that waited, but saw no event.
var errTimedOut = errors.New("timed out")

var (
	logLevels = map[string]logiface.Level{
		`disabled`: logiface.LevelDisabled,
		`emerg`:    logiface.LevelEmergency,
		`alert`:    logiface.LevelAlert,
		`crit`:     logiface.LevelCritical,
		`err`:      logiface.LevelError,
		`error`:    logiface.LevelError,
		`warning`:  logiface.LevelWarning,
		`warn`:     logiface.LevelWarning,
		`notice`:   logiface.LevelNotice,
		`info`:     logiface.LevelInformational,
		`debug`:    logiface.LevelDebug,
		`trace`:    logiface.LevelTrace,
	}

	fileOps = map[string]fsnotify.Op{
		`create`: fsnotify.Create,
		`write`:  fsnotify.Write,
		`remove`: fsnotify.Remove,
		`rename`: fsnotify.Rename,
		`chmod`:  fsnotify.Chmod,
	}
)

// run executes the command line, returning the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(viper.New(), stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitEvent
	case errors.Is(err, errTimedOut):
		return exitTimeout
	default:
		_, _ = fmt.Fprintf(stderr, "sigwait: %v\n", err)
		return exitError
	}
}

func newRootCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           `sigwait`,
		Short:         `Wait for an event, or a timeout`,
		Long:          "Wait for an event, or a timeout.\n\nExits 0 if the event arrived, 1 on timeout, 2 on error.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().Duration(`timeout`, sigwait.DefaultTimeout, `maximum time to wait`)
	root.PersistentFlags().String(`log-level`, `warning`, `log level, e.g. debug, info, warning`)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(`-`, `_`))
	v.AutomaticEnv()
	_ = v.BindPFlag(`timeout`, root.PersistentFlags().Lookup(`timeout`))
	_ = v.BindPFlag(`log-level`, root.PersistentFlags().Lookup(`log-level`))

	root.AddCommand(newFileCmd(v, stdout, stderr))

	return root
}

func newFileCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   `file PATH...`,
		Short: `Wait for a filesystem event, on any of the given files or directories`,
		Args:  cobra.MinimumNArgs(1),
	}

	cmd.Flags().StringSlice(`ops`, []string{`create`, `write`, `rename`}, `operations to wait for (create, write, remove, rename, chmod)`)
	_ = v.BindPFlag(`ops`, cmd.Flags().Lookup(`ops`))

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		timeout := v.GetDuration(`timeout`)
		if timeout < 0 {
			return fmt.Errorf("invalid timeout: %s", timeout)
		}

		level, ok := logLevels[strings.ToLower(v.GetString(`log-level`))]
		if !ok {
			return fmt.Errorf("invalid log level: %q", v.GetString(`log-level`))
		}

		ops, err := parseOps(v.GetStringSlice(`ops`))
		if err != nil {
			return err
		}

		logger := stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
			stumpy.L.WithLevel(level),
		).Logger()

		event, err := waitForFile(cmd.Context(), logger, args, ops, timeout)
		if err != nil {
			return err
		}
		if event == nil {
			_, _ = fmt.Fprintln(stdout, `timeout`)
			return errTimedOut
		}
		_, _ = fmt.Fprintf(stdout, "%s %s\n", strings.ToLower(event.Op.String()), event.Name)
		return nil
	}

	return cmd
}

func parseOps(names []string) (fsnotify.Op, error) {
	var ops fsnotify.Op
	for _, value := range names {
		for _, name := range strings.Split(value, `,`) {
			op, ok := fileOps[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return 0, fmt.Errorf("invalid op: %q", name)
			}
			ops |= op
		}
	}
	if ops == 0 {
		return 0, errors.New("no ops")
	}
	return ops, nil
}

// waitForFile returns the first matching event, or nil on timeout.
func waitForFile(ctx context.Context, logger *logiface.Logger[logiface.Event], paths []string, ops fsnotify.Op, timeout time.Duration) (*fsnotify.Event, error) {
	loop, err := eventloop.New(eventloop.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	defer func() {
		_ = loop.Shutdown(context.Background())
		<-done
	}()

	watcher, err := fswatch.New(loop, &fswatch.Config{
		Logger: logger,
		Ops:    ops,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = watcher.Close() }()

	// first event wins, recorded on the loop goroutine, prior to settling
	var first *fsnotify.Event
	id, err := watcher.Connect(func(event fsnotify.Event) {
		if first == nil {
			first = &event
		}
	})
	if err != nil {
		return nil, err
	}
	defer watcher.Disconnect(id)

	// armed before watching, so no event can be missed
	pending, err := sigwait.ForLoop(loop, &sigwait.Config{Logger: logger}).Arm(ctx, watcher, timeout)
	if err != nil {
		return nil, err
	}
	defer pending.Cancel()

	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			return nil, err
		}
	}

	fired, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if !fired {
		return nil, nil
	}

	var event fsnotify.Event
	if err := loop.Do(ctx, func() error {
		event = *first
		return nil
	}); err != nil {
		return nil, err
	}

	logger.Debug().
		Str(`name`, event.Name).
		Str(`op`, event.Op.String()).
		Log(`event received`)

	return &event, nil
}
