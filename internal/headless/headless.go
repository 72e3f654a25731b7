// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package headless is an in-memory editor, implementing harness.App and
// harness.Core, for testing the harness itself.
//
// Nothing is synchronized: all methods must be called on the loop goroutine.
package headless

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/joeycumines/go-uiharness/eventloop"
	"github.com/joeycumines/go-uiharness/harness"
	"github.com/joeycumines/logiface"
)

// Action paths, see Core.TriggerAction.
const (
	ActionSave  = `mFile/aSave`
	ActionClose = `mFile/aClose`
)

// Dock titles, see Core.Docks.
const (
	SearchDock  = `Search`
	ProjectDock = `Project`
)

const settingsTitle = `Settings`

var (
	// ErrUnsavedChanges is returned when closing a modified document.
	ErrUnsavedChanges = errors.New("headless: unsaved changes")

	// ErrUnknownAction is returned by TriggerAction.
	ErrUnknownAction = errors.New("headless: unknown action")

	// ErrNotInitialized is returned by Core methods called before Init, or
	// after Term.
	ErrNotInitialized = errors.New("headless: core not initialized")
)

type (
	// Config models optional configuration, for Backend.
	Config struct {
		// DialogDelay postpones showing the settings dialog, after the
		// action is triggered.
		DialogDelay time.Duration

		// FocusDialog controls whether the settings dialog takes focus.
		// **Defaults to true, if nil.**
		FocusDialog *bool
	}

	// Widget is an in-memory harness.Widget. Key events are recorded, and
	// passed to OnKey, if set.
	Widget struct {
		parent   *Widget
		OnKey    func(event harness.KeyEvent)
		title    string
		children []*Widget
		keys     []harness.KeyEvent
		kind     harness.WidgetKind
		visible  bool
	}

	// App tracks top-level widgets, and keyboard focus.
	App struct {
		focus    *Widget
		topLevel []*Widget
	}

	// Document is an open file, held in memory until saved.
	Document struct {
		saved    *eventloop.Signal[string]
		path     string
		text     string
		modified bool
	}

	// Core is the editor: a main window with an editor widget and docks,
	// documents, and actions. Instances must be initialized using NewCore.
	Core struct {
		env      *harness.Env
		app      *App
		logger   *logiface.Logger[logiface.Event]
		main     *Widget
		editor   *Widget
		settings *Widget
		actions  map[string]func() error
		docks    []*Widget
		docs     []*Document
		current  *Document
		cfg      Config
		inited   bool
	}
)

var (
	_ harness.Widget   = (*Widget)(nil)
	_ harness.App      = (*App)(nil)
	_ harness.Document = (*Document)(nil)
	_ harness.Core     = (*Core)(nil)
)

// Backend returns a harness.Backend, building a new App and Core per fixture.
// The cfg may be nil.
func Backend(cfg *Config) harness.Backend {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	return func(env *harness.Env) (harness.App, harness.Core, error) {
		core := NewCore(env, &c)
		return core.App(), core, nil
	}
}

// NewWidget creates a hidden widget, adding it to parent, if non-nil.
func NewWidget(kind harness.WidgetKind, title string, parent *Widget) *Widget {
	w := &Widget{kind: kind, title: title, parent: parent}
	if parent != nil {
		parent.children = append(parent.children, w)
	}
	return w
}

// Kind implements harness.Widget.
func (x *Widget) Kind() harness.WidgetKind { return x.kind }

// Title implements harness.Widget.
func (x *Widget) Title() string { return x.title }

// Visible implements harness.Widget.
func (x *Widget) Visible() bool { return x.visible }

// SetVisible shows or hides the widget.
func (x *Widget) SetVisible(visible bool) { x.visible = visible }

// Parent implements harness.Widget, returning nil for top-level widgets.
func (x *Widget) Parent() harness.Widget {
	if x.parent == nil {
		return nil
	}
	return x.parent
}

// Children returns the widgets created with this one as their parent.
func (x *Widget) Children() []*Widget { return x.children }

// HandleKey records event, then calls OnKey, if set.
func (x *Widget) HandleKey(event harness.KeyEvent) {
	x.keys = append(x.keys, event)
	if x.OnKey != nil {
		x.OnKey(event)
	}
}

// Keys returns all key events received.
func (x *Widget) Keys() []harness.KeyEvent { return x.keys }

// FocusWidget implements harness.App.
func (x *App) FocusWidget() harness.Widget {
	if x.focus == nil {
		return nil
	}
	return x.focus
}

// SetFocus gives widget keyboard focus. It may be nil.
func (x *App) SetFocus(widget *Widget) { x.focus = widget }

// TopLevelWidgets implements harness.App.
func (x *App) TopLevelWidgets() []harness.Widget {
	widgets := make([]harness.Widget, len(x.topLevel))
	for i, w := range x.topLevel {
		widgets[i] = w
	}
	return widgets
}

// AddTopLevel registers a top-level widget.
func (x *App) AddTopLevel(widget *Widget) { x.topLevel = append(x.topLevel, widget) }

func (x *App) removeTopLevel(widget *Widget) {
	for i, w := range x.topLevel {
		if w == widget {
			x.topLevel = append(x.topLevel[:i:i], x.topLevel[i+1:]...)
			return
		}
	}
}

// Path returns the absolute path of the file.
func (x *Document) Path() string { return x.path }

// Text returns the current, possibly unsaved, content.
func (x *Document) Text() string { return x.text }

// Modified reports whether there are unsaved changes.
func (x *Document) Modified() bool { return x.modified }

// DiscardChanges implements harness.Document. The text is left as is.
func (x *Document) DiscardChanges() { x.modified = false }

// SetText replaces the content, marking the document modified.
func (x *Document) SetText(text string) {
	x.text = text
	x.modified = true
}

// Saved emits the path, each time the document is written to disk.
func (x *Document) Saved() *eventloop.Signal[string] { return x.saved }

// Save writes the document to disk, then emits Saved.
func (x *Document) Save() error {
	if err := os.WriteFile(x.path, []byte(x.text), 0o644); err != nil {
		return fmt.Errorf("headless: save: %w", err)
	}
	x.modified = false
	x.saved.Emit(x.path)
	return nil
}

// NewCore builds the core, and an App, from env. The main window and docks
// exist but are hidden until Init and ShowMainWindow.
func NewCore(env *harness.Env, cfg *Config) *Core {
	c := Core{
		env:    env,
		app:    &App{},
		logger: env.Logger,
	}
	if cfg != nil {
		c.cfg = *cfg
	}

	c.main = NewWidget(harness.KindMainWindow, `Editor`, nil)
	c.app.AddTopLevel(c.main)

	c.editor = NewWidget(harness.KindWidget, `editor`, c.main)
	c.editor.OnKey = c.editorKey

	c.docks = []*Widget{
		NewWidget(harness.KindDock, SearchDock, c.main),
		NewWidget(harness.KindDock, ProjectDock, c.main),
	}

	c.actions = map[string]func() error{
		harness.SettingsAction: c.openSettings,
		ActionSave:             c.saveCurrent,
		ActionClose:            c.closeCurrent,
	}

	return &c
}

// App returns the application the core was built with.
func (x *Core) App() *App { return x.app }

// Editor returns the editor widget, which edits the current document.
func (x *Core) Editor() *Widget { return x.editor }

// Settings returns the settings dialog, once it has been opened.
func (x *Core) Settings() *Widget { return x.settings }

// Current returns the document being edited, or nil.
func (x *Core) Current() *Document { return x.current }

// Init shows the editor and docks, and focuses the editor.
func (x *Core) Init() error {
	if x.inited {
		return errors.New("headless: core already initialized")
	}
	x.inited = true
	x.editor.SetVisible(true)
	for _, dock := range x.docks {
		dock.SetVisible(true)
	}
	x.app.SetFocus(x.editor)
	x.logger.Debug().
		Str(`config`, x.env.ConfigDir).
		Log(`headless: core initialized`)
	return nil
}

// Term hides the main window, and closes the settings dialog, if open.
func (x *Core) Term() error {
	if !x.inited {
		return ErrNotInitialized
	}
	x.inited = false
	x.main.SetVisible(false)
	if x.settings != nil {
		x.closeSettings()
	}
	return nil
}

// MainWindow implements harness.Core.
func (x *Core) MainWindow() harness.Widget { return x.main }

// ShowMainWindow implements harness.Core.
func (x *Core) ShowMainWindow() error {
	if !x.inited {
		return ErrNotInitialized
	}
	x.main.SetVisible(true)
	return nil
}

// Docks returns the Search and Project docks.
func (x *Core) Docks() []harness.Widget {
	widgets := make([]harness.Widget, len(x.docks))
	for i, w := range x.docks {
		widgets[i] = w
	}
	return widgets
}

// Documents returns the open documents, in the order they were opened.
func (x *Core) Documents() []harness.Document {
	docs := make([]harness.Document, len(x.docs))
	for i, d := range x.docs {
		docs[i] = d
	}
	return docs
}

// OpenFile reads path, relative to the working directory if not absolute,
// and makes it the current document. Opening an already open file returns the
// existing document.
func (x *Core) OpenFile(path string) (harness.Document, error) {
	if !x.inited {
		return nil, ErrNotInitialized
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	for _, doc := range x.docs {
		if doc.path == path {
			x.current = doc
			return doc, nil
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("headless: open: %w", err)
	}
	doc := &Document{
		saved: eventloop.NewSignal[string](x.env.Loop),
		path:  path,
		text:  string(b),
	}
	x.docs = append(x.docs, doc)
	x.current = doc
	x.app.SetFocus(x.editor)
	return doc, nil
}

// CloseAllDocuments closes every document, most recent first, stopping at
// the first with unsaved changes (ErrUnsavedChanges).
func (x *Core) CloseAllDocuments() error {
	for len(x.docs) != 0 {
		x.current = x.docs[len(x.docs)-1]
		if err := x.closeCurrent(); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAction runs the action registered for path, or returns
// ErrUnknownAction.
func (x *Core) TriggerAction(path string) error {
	action, ok := x.actions[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, path)
	}
	return action()
}

func (x *Core) closeCurrent() error {
	doc := x.current
	if doc == nil {
		return nil
	}
	if doc.modified {
		return fmt.Errorf("%w: %s", ErrUnsavedChanges, doc.path)
	}
	for i, d := range x.docs {
		if d == doc {
			x.docs = append(x.docs[:i:i], x.docs[i+1:]...)
			break
		}
	}
	doc.saved.Close()
	x.current = nil
	if n := len(x.docs); n != 0 {
		x.current = x.docs[n-1]
	}
	return nil
}

func (x *Core) saveCurrent() error {
	if x.current == nil {
		return nil
	}
	return x.current.Save()
}

func (x *Core) openSettings() error {
	show := func() {
		if x.settings == nil {
			x.settings = NewWidget(harness.KindDialog, settingsTitle, nil)
			ok := NewWidget(harness.KindWidget, `ok`, x.settings)
			ok.SetVisible(true)
			ok.OnKey = func(event harness.KeyEvent) {
				if event.Key == `Enter` || event.Key == `Escape` {
					x.closeSettings()
				}
			}
			x.app.AddTopLevel(x.settings)
		}
		x.settings.SetVisible(true)
		if x.cfg.FocusDialog == nil || *x.cfg.FocusDialog {
			x.app.SetFocus(x.settings.children[0])
		}
	}
	if x.cfg.DialogDelay <= 0 {
		show()
		return nil
	}
	_, err := x.env.Loop.ScheduleTimer(x.cfg.DialogDelay, show)
	return err
}

func (x *Core) closeSettings() {
	x.settings.SetVisible(false)
	x.app.removeTopLevel(x.settings)
	x.settings = nil
	x.app.SetFocus(x.editor)
}

// editorKey inserts typed text into the current document, and handles a
// few shortcuts.
func (x *Core) editorKey(event harness.KeyEvent) {
	if x.current == nil {
		return
	}
	switch event.String() {
	case `Ctrl+S`:
		if err := x.saveCurrent(); err != nil {
			x.logger.Err().
				Err(err).
				Log(`headless: save failed`)
		}
		return
	case `Backspace`:
		if _, size := utf8.DecodeLastRuneInString(x.current.text); size != 0 {
			x.current.SetText(x.current.text[:len(x.current.text)-size])
		}
		return
	}
	if event.Text != `` {
		x.current.SetText(x.current.text + event.Text)
	}
}
