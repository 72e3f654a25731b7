// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package harness

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrInvalidKey is returned for key sequences that cannot be parsed.
	ErrInvalidKey = errors.New("harness: invalid key sequence")

	// ErrModifiersWithText is returned if modifiers are supplied alongside a
	// text key sequence, which carries its own modifiers.
	ErrModifiersWithText = errors.New("harness: do not set modifiers, if using text key")

	// ErrNoFocusWidget is returned when no widget was given, and nothing has
	// keyboard focus.
	ErrNoFocusWidget = errors.New("harness: no focus widget")
)

type (
	// Key identifies a key. Printable keys are their (upper case) character,
	// others use canonical names, e.g. "Enter", "F5", "PgUp".
	Key string

	// Modifiers is a set of keyboard modifiers.
	Modifiers uint8

	// KeyEvent is a single key click, delivered to Widget.HandleKey.
	KeyEvent struct {
		Key  Key
		Text string
		Mods Modifiers
	}

	// KeyOption configures Fixture.KeyClick and friends.
	KeyOption interface {
		applyKey(*keyOptions)
	}

	keyOptionImpl struct {
		applyKeyFunc func(*keyOptions)
	}

	keyOptions struct {
		widget Widget
		mods   Modifiers
	}
)

// NoModifier is the empty set.
const NoModifier Modifiers = 0

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

var (
	// order used for formatting
	modifierNames = [...]struct {
		name string
		mod  Modifiers
	}{
		{`Ctrl`, ModCtrl},
		{`Alt`, ModAlt},
		{`Shift`, ModShift},
		{`Meta`, ModMeta},
	}

	modifierAliases = map[string]Modifiers{
		`ctrl`:    ModCtrl,
		`control`: ModCtrl,
		`shift`:   ModShift,
		`alt`:     ModAlt,
		`meta`:    ModMeta,
		`cmd`:     ModMeta,
	}

	namedKeys = map[string]Key{
		`enter`:     `Enter`,
		`return`:    `Enter`,
		`esc`:       `Escape`,
		`escape`:    `Escape`,
		`tab`:       `Tab`,
		`backtab`:   `Backtab`,
		`backspace`: `Backspace`,
		`del`:       `Delete`,
		`delete`:    `Delete`,
		`ins`:       `Insert`,
		`insert`:    `Insert`,
		`home`:      `Home`,
		`end`:       `End`,
		`pgup`:      `PgUp`,
		`pageup`:    `PgUp`,
		`pgdown`:    `PgDown`,
		`pagedown`:  `PgDown`,
		`up`:        `Up`,
		`down`:      `Down`,
		`left`:      `Left`,
		`right`:     `Right`,
		`space`:     `Space`,
	}
)

func (x *keyOptionImpl) applyKey(opts *keyOptions) {
	x.applyKeyFunc(opts)
}

// WithWidget targets widget, instead of the focus widget.
func WithWidget(widget Widget) KeyOption {
	return &keyOptionImpl{func(opts *keyOptions) {
		opts.widget = widget
	}}
}

// WithModifiers adds modifiers to each key event. Not valid for
// Fixture.KeyClick, which parses modifiers from the key sequence.
func WithModifiers(mods Modifiers) KeyOption {
	return &keyOptionImpl{func(opts *keyOptions) {
		opts.mods |= mods
	}}
}

func resolveKeyOptions(opts []KeyOption) keyOptions {
	var cfg keyOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applyKey(&cfg)
		}
	}
	return cfg
}

func (x Modifiers) String() string {
	var b strings.Builder
	for _, v := range modifierNames {
		if x&v.mod != 0 {
			if b.Len() != 0 {
				b.WriteByte('+')
			}
			b.WriteString(v.name)
		}
	}
	return b.String()
}

func (x KeyEvent) String() string {
	if mods := x.Mods.String(); mods != `` {
		return mods + `+` + string(x.Key)
	}
	return string(x.Key)
}

// ParseKey parses a key sequence such as "Ctrl+Shift+S", "F5" or "Alt++".
// Modifier and named key matching is case-insensitive.
func ParseKey(sequence string) (Key, Modifiers, error) {
	var keyPart, modPart string
	switch {
	case sequence == `+`:
		keyPart = `+`
	case strings.HasSuffix(sequence, `++`):
		keyPart = `+`
		modPart = sequence[:len(sequence)-2]
	default:
		if i := strings.LastIndexByte(sequence, '+'); i >= 0 {
			keyPart, modPart = sequence[i+1:], sequence[:i]
		} else {
			keyPart = sequence
		}
	}

	var mods Modifiers
	if modPart != `` {
		for _, name := range strings.Split(modPart, `+`) {
			mod, ok := modifierAliases[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return ``, 0, fmt.Errorf("%w: unknown modifier %q in %q", ErrInvalidKey, name, sequence)
			}
			mods |= mod
		}
	}

	key, ok := parseKeyName(strings.TrimSpace(keyPart))
	if !ok {
		return ``, 0, fmt.Errorf("%w: unknown key %q in %q", ErrInvalidKey, keyPart, sequence)
	}

	return key, mods, nil
}

func parseKeyName(s string) (Key, bool) {
	switch utf8.RuneCountInString(s) {
	case 0:
		return ``, false
	case 1:
		return Key(strings.ToUpper(s)), true
	}
	lower := strings.ToLower(s)
	if key, ok := namedKeys[lower]; ok {
		return key, true
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(lower, `f`)); err == nil && lower[0] == 'f' && n >= 1 && n <= 35 {
		return Key(`F` + strconv.Itoa(n)), true
	}
	return ``, false
}

// keyText returns the text a key click would produce, if any.
func keyText(key Key, mods Modifiers) string {
	if mods&^ModShift != 0 {
		return ``
	}
	if key == `Space` {
		return ` `
	}
	r, size := utf8.DecodeRuneInString(string(key))
	if size != len(key) || !unicode.IsPrint(r) {
		return ``
	}
	if mods&ModShift != 0 {
		return string(unicode.ToUpper(r))
	}
	return string(unicode.ToLower(r))
}

// keyForRune maps typed text to the key that would produce it.
func keyForRune(r rune) Key {
	switch r {
	case ' ':
		return `Space`
	case '\n':
		return `Enter`
	case '\t':
		return `Tab`
	}
	return Key(string(unicode.ToUpper(r)))
}

// KeyClick parses key (see ParseKey), and clicks it, on the focus widget
// unless WithWidget is provided. WithModifiers is rejected with
// ErrModifiersWithText.
func (x *Fixture) KeyClick(key string, opts ...KeyOption) error {
	cfg := resolveKeyOptions(opts)
	if cfg.mods != NoModifier {
		return ErrModifiersWithText
	}
	k, mods, err := ParseKey(key)
	if err != nil {
		return err
	}
	return x.sendKeys(cfg.widget, KeyEvent{Key: k, Mods: mods, Text: keyText(k, mods)})
}

// KeyPress clicks key, with mods, on the focus widget unless WithWidget is
// provided.
func (x *Fixture) KeyPress(key Key, mods Modifiers, opts ...KeyOption) error {
	cfg := resolveKeyOptions(opts)
	mods |= cfg.mods
	return x.sendKeys(cfg.widget, KeyEvent{Key: key, Mods: mods, Text: keyText(key, mods)})
}

// KeyClicks types text, one key click per rune, on the focus widget unless
// WithWidget is provided.
func (x *Fixture) KeyClicks(text string, opts ...KeyOption) error {
	cfg := resolveKeyOptions(opts)
	events := make([]KeyEvent, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		events = append(events, KeyEvent{Key: keyForRune(r), Mods: cfg.mods, Text: string(r)})
	}
	return x.sendKeys(cfg.widget, events...)
}

func (x *Fixture) sendKeys(widget Widget, events ...KeyEvent) error {
	return x.Do(func() error {
		target := widget
		if target == nil {
			target = x.app.FocusWidget()
		}
		if target == nil {
			return ErrNoFocusWidget
		}
		for _, event := range events {
			target.HandleKey(event)
		}
		return nil
	})
}
