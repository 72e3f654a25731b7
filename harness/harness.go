// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-uiharness/eventloop"
	"github.com/joeycumines/go-uiharness/sigwait"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	// TestFileDirName is the base name of Env.TestFileDir.
	TestFileDirName = `uiharness-tests`

	// ExistingFileName is the base name of Env.ExistingFile.
	ExistingFileName = `existing_file.txt`

	// ExistingFileText is the content of Env.ExistingFile, as of setup.
	ExistingFileText = "hi\n"

	// DefaultLogLevel is used when Config.LogLevel is unset.
	DefaultLogLevel = logiface.LevelWarning

	shutdownTimeout = 5 * time.Second
)

// ErrFinished is returned by operations still in flight at teardown.
var ErrFinished = errors.New("harness: fixture finished")

type (
	// WidgetKind classifies widgets, for dialog and dock discovery.
	WidgetKind int

	// Widget is a UI element of the application under test. All methods are
	// called on the loop goroutine.
	Widget interface {
		Kind() WidgetKind
		Title() string
		Visible() bool
		// Parent returns nil for top-level widgets.
		Parent() Widget
		HandleKey(event KeyEvent)
	}

	// App models the toolkit's application object. All methods are called on
	// the loop goroutine.
	App interface {
		// FocusWidget returns the widget with keyboard focus, or nil.
		FocusWidget() Widget
		TopLevelWidgets() []Widget
	}

	// Document is an open file.
	Document interface {
		Path() string
		Text() string
		Modified() bool
		// DiscardChanges clears the modified flag, so closing the document
		// does not prompt.
		DiscardChanges()
	}

	// Core models the editor's core object. All methods are called on the
	// loop goroutine.
	Core interface {
		Init() error
		Term() error
		MainWindow() Widget
		ShowMainWindow() error
		Docks() []Widget
		Documents() []Document
		OpenFile(path string) (Document, error)
		CloseAllDocuments() error
		// TriggerAction triggers the action identified by path, e.g.
		// "mSettings/aSettings".
		TriggerAction(path string) error
	}

	// Backend constructs the application under test. It is called once per
	// fixture, after the environment is prepared, but before Core.Init.
	Backend func(env *Env) (App, Core, error)

	// Env is the per-fixture context, that the application under test is
	// constructed with.
	Env struct {
		Loop    *eventloop.Loop
		Signals *sigwait.Helper
		Logger  *logiface.Logger[logiface.Event]

		TestFileDir  string
		ExistingFile string
		ConfigDir    string

		ID uuid.UUID
	}

	// Config models configuration, for New.
	Config struct {
		// Backend is required.
		Backend Backend

		// Logger will be used if non-nil, otherwise one will be created,
		// writing JSON lines to the test log.
		Logger *logiface.Logger[logiface.Event]

		// LogLevel applies only to the default logger.
		// **Defaults to DefaultLogLevel, if 0.**
		LogLevel logiface.Level

		// SignalTimeout is used by Fixture.WaitForSignal.
		// **Defaults to sigwait.DefaultTimeout, if 0.**
		SignalTimeout time.Duration

		// Chdir changes the working directory to Env.TestFileDir, for the
		// duration of the test. Such tests may not be parallel.
		Chdir bool
	}

	// Fixture owns an Env, and the application built from it, for the
	// duration of a single test. Instances must be initialized using New.
	Fixture struct {
		Env

		t             testing.TB
		app           App
		core          Core
		group         errgroup.Group
		dialogLimiter *catrate.Limiter
		logWriter     *testLogWriter
		finished      atomic.Bool
	}
)

const (
	// KindWidget is any widget that is not one of the other kinds.
	KindWidget WidgetKind = iota
	// KindDialog is a top-level dialog, see Fixture.FindDialog.
	KindDialog
	// KindDock is a dock widget, see Fixture.FindDock.
	KindDock
	// KindMainWindow is the application's main window.
	KindMainWindow
)

// String returns a short lower case name, e.g. "dialog".
func (x WidgetKind) String() string {
	switch x {
	case KindWidget:
		return `widget`
	case KindDialog:
		return `dialog`
	case KindDock:
		return `dock`
	case KindMainWindow:
		return `main-window`
	default:
		return fmt.Sprintf(`WidgetKind(%d)`, int(x))
	}
}

// New prepares the environment, starts the loop, constructs the application
// using cfg.Backend, and initializes it. Teardown is registered with
// t.Cleanup. Fails the test (via t.FailNow) on error.
func New(t testing.TB, cfg *Config) *Fixture {
	t.Helper()

	if cfg == nil || cfg.Backend == nil {
		panic(`harness: nil backend`)
	}

	x := Fixture{t: t}
	x.ID = uuid.New()

	x.Logger = cfg.Logger
	if x.Logger == nil {
		level := cfg.LogLevel
		if level == 0 {
			level = DefaultLogLevel
		}
		x.logWriter = &testLogWriter{t: t}
		x.Logger = newLogger(x.logWriter, level)
	}
	x.Logger = x.Logger.Clone().
		Str(`fixture`, x.ID.String()).
		Logger()

	root := t.TempDir()

	x.TestFileDir = filepath.Join(root, TestFileDirName)
	require.NoError(t, os.Mkdir(x.TestFileDir, 0o755))

	x.ExistingFile = filepath.Join(x.TestFileDir, ExistingFileName)
	require.NoError(t, os.WriteFile(x.ExistingFile, []byte(ExistingFileText), 0o644))

	x.ConfigDir = filepath.Join(root, `config-`+x.ID.String())
	require.NoError(t, os.Mkdir(x.ConfigDir, 0o755))

	if cfg.Chdir {
		t.Chdir(x.TestFileDir)
	}

	loop, err := eventloop.New(eventloop.WithLogger(x.Logger))
	require.NoError(t, err)
	x.Loop = loop
	x.group.Go(func() error { return loop.Run(context.Background()) })

	x.Signals = sigwait.ForLoop(loop, &sigwait.Config{
		Logger:  x.Logger,
		Timeout: cfg.SignalTimeout,
	})

	x.dialogLimiter = catrate.NewLimiter(map[time.Duration]int{
		time.Second: 5,
	})

	t.Cleanup(x.teardown)

	app, core, err := cfg.Backend(&x.Env)
	require.NoError(t, err, `harness: backend`)
	x.app, x.core = app, core

	require.NoError(t, x.Do(core.Init), `harness: core init`)

	x.Logger.Debug().
		Str(`dir`, x.TestFileDir).
		Log(`fixture ready`)

	return &x
}

func (x *Fixture) teardown() {
	x.finished.Store(true)

	if x.core != nil {
		if err := x.Do(func() error {
			for _, doc := range x.core.Documents() {
				doc.DiscardChanges()
			}
			if err := x.core.CloseAllDocuments(); err != nil {
				return fmt.Errorf("harness: close all documents: %w", err)
			}
			if err := x.core.Term(); err != nil {
				return fmt.Errorf("harness: core term: %w", err)
			}
			return nil
		}); err != nil {
			x.t.Errorf("harness: teardown: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := x.Loop.Shutdown(ctx); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		x.t.Errorf("harness: loop shutdown: %v", err)
	} else if err := x.group.Wait(); err != nil {
		x.t.Errorf("harness: loop: %v", err)
	}

	if x.logWriter != nil {
		x.logWriter.close()
	}
}

// T returns the test the fixture belongs to.
func (x *Fixture) T() testing.TB {
	return x.t
}

// App returns the application under test.
func (x *Fixture) App() App {
	return x.app
}

// Core returns the core object of the application under test.
func (x *Fixture) Core() Core {
	return x.core
}

// Finished reports whether teardown has started.
func (x *Fixture) Finished() bool {
	return x.finished.Load()
}

// Do runs fn on the loop goroutine, and waits for it. It may be called from
// the loop goroutine, in which case fn is run inline.
func (x *Fixture) Do(fn func() error) error {
	return x.Loop.Do(context.Background(), fn)
}

// CreateFile writes text to name, within TestFileDir, then opens it.
func (x *Fixture) CreateFile(name, text string) (Document, error) {
	path := filepath.Join(x.TestFileDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("harness: create file: %w", err)
	}
	var doc Document
	if err := x.Do(func() (err error) {
		doc, err = x.core.OpenFile(path)
		return
	}); err != nil {
		return nil, fmt.Errorf("harness: open file: %w", err)
	}
	return doc, nil
}

// WaitForSignal waits up to timeout for source to notify, returning true if
// it did. A timeout of 0 uses Config.SignalTimeout. Errors fail the test, so
// this must be called from the test goroutine.
func (x *Fixture) WaitForSignal(source sigwait.Source, timeout time.Duration) bool {
	x.t.Helper()
	if timeout == 0 {
		timeout = x.Signals.Timeout()
	}
	fired, err := x.Signals.WaitTimeout(context.Background(), source, timeout)
	require.NoError(x.t, err)
	return fired
}
