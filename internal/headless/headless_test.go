// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package headless

import (
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/joeycumines/go-uiharness/eventloop"
	"github.com/joeycumines/go-uiharness/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCore builds an initialized core, on a loop that is never run. Nothing
// here needs dispatch, as emissions off the loop are only queued.
func newCore(t *testing.T) (*Core, string) {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })
	dir := t.TempDir()
	core := NewCore(&harness.Env{Loop: loop, TestFileDir: dir}, nil)
	require.NoError(t, core.Init())
	return core, dir
}

func TestCore_lifecycle(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	core := NewCore(&harness.Env{Loop: loop}, nil)

	assert.ErrorIs(t, core.ShowMainWindow(), ErrNotInitialized)
	assert.ErrorIs(t, core.Term(), ErrNotInitialized)

	require.NoError(t, core.Init())
	assert.Error(t, core.Init())
	require.NoError(t, core.ShowMainWindow())
	assert.True(t, core.MainWindow().Visible())
	assert.Equal(t, harness.KindMainWindow, core.MainWindow().Kind())

	require.NoError(t, core.Term())
	assert.False(t, core.MainWindow().Visible())
}

func TestCore_CloseAllDocuments_unsaved(t *testing.T) {
	core, dir := newCore(t)

	path := filepath.Join(dir, `a.txt`)
	require.NoError(t, os.WriteFile(path, []byte(`a`), 0o644))

	doc, err := core.OpenFile(path)
	require.NoError(t, err)
	again, err := core.OpenFile(path)
	require.NoError(t, err)
	assert.Same(t, doc, again)
	assert.Len(t, core.Documents(), 1)

	core.Current().SetText(`b`)
	assert.ErrorIs(t, core.CloseAllDocuments(), ErrUnsavedChanges)

	doc.DiscardChanges()
	require.NoError(t, core.CloseAllDocuments())
	assert.Empty(t, core.Documents())
	assert.Nil(t, core.Current())
	assert.True(t, doc.(*Document).Saved().Closed())
}

func TestCore_TriggerAction(t *testing.T) {
	core, dir := newCore(t)

	assert.ErrorIs(t, core.TriggerAction(`mNope/aNope`), ErrUnknownAction)

	// no current document
	require.NoError(t, core.TriggerAction(ActionSave))

	path := filepath.Join(dir, `b.txt`)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := core.OpenFile(path)
	require.NoError(t, err)
	core.Current().SetText(`saved`)
	require.NoError(t, core.TriggerAction(ActionSave))
	assert.False(t, core.Current().Modified())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `saved`, string(b))

	require.NoError(t, core.TriggerAction(ActionClose))
	assert.Nil(t, core.Current())

	require.NoError(t, core.TriggerAction(harness.SettingsAction))
	require.NotNil(t, core.Settings())
	assert.True(t, core.Settings().Visible())
	assert.Contains(t, core.App().TopLevelWidgets(), harness.Widget(core.Settings()))
}

func TestEditor_keys(t *testing.T) {
	core, dir := newCore(t)

	path := filepath.Join(dir, `c.txt`)
	require.NoError(t, os.WriteFile(path, []byte(`ab`), 0o644))
	_, err := core.OpenFile(path)
	require.NoError(t, err)

	editor := core.Editor()
	editor.HandleKey(harness.KeyEvent{Key: `C`, Text: `c`})
	editor.HandleKey(harness.KeyEvent{Key: `Backspace`})
	editor.HandleKey(harness.KeyEvent{Key: `Backspace`})
	editor.HandleKey(harness.KeyEvent{Key: `S`, Mods: harness.ModCtrl})

	assert.Equal(t, `a`, core.Current().Text())
	assert.False(t, core.Current().Modified())
	assert.Len(t, editor.Keys(), 4)
}

func TestEditor_backspaceMultiByte(t *testing.T) {
	core, dir := newCore(t)

	path := filepath.Join(dir, `d.txt`)
	require.NoError(t, os.WriteFile(path, []byte(`añ€`), 0o644))
	_, err := core.OpenFile(path)
	require.NoError(t, err)

	editor := core.Editor()
	editor.HandleKey(harness.KeyEvent{Key: `Backspace`})
	assert.Equal(t, `añ`, core.Current().Text())
	editor.HandleKey(harness.KeyEvent{Key: `Backspace`})
	assert.Equal(t, `a`, core.Current().Text())
	assert.True(t, utf8.ValidString(core.Current().Text()))
	editor.HandleKey(harness.KeyEvent{Key: `Backspace`})
	editor.HandleKey(harness.KeyEvent{Key: `Backspace`})
	assert.Equal(t, ``, core.Current().Text())
}

func TestWidget_Parent(t *testing.T) {
	root := NewWidget(harness.KindDialog, `root`, nil)
	child := NewWidget(harness.KindWidget, `child`, root)

	assert.Nil(t, root.Parent())
	assert.Equal(t, harness.Widget(root), child.Parent())
	assert.Equal(t, []*Widget{child}, root.Children())
}
