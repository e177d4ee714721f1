// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fake provides an in-memory emulator implementation for tests.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/hostgw/internal/emulator"
)

// Session is a scriptable in-memory emulator session. The zero value behaves
// permissively: every wait succeeds and every field exists. Tests override
// individual hooks to inject behavior.
type Session struct {
	SessionName string

	// Hooks; nil means permissive default.
	OnWaitForText    func(text string) bool
	OnScreenContains func(text string) bool
	OnFillByLabel    func(label, value string) bool
	OnSubmit         func() error
	OnPF             func(n int) error
	OnDrop           func() error

	// Screen is returned by FormattedScreen.
	Screen string

	mu       sync.Mutex
	notify   func(string)
	dropped  bool
	Filled   map[string]string // label -> last value written
	Typed    []string
	RawInput []string
	PFs      []int
	PAs      []int
	Submits  int
}

var _ emulator.Session = (*Session)(nil)

// NewSession returns a permissive fake session.
func NewSession(name string) *Session {
	return &Session{SessionName: name, Filled: make(map[string]string)}
}

func (s *Session) Name() string { return s.SessionName }

func (s *Session) WaitForText(_ context.Context, text string, _ time.Duration) bool {
	if s.OnWaitForText != nil {
		return s.OnWaitForText(text)
	}
	return true
}

func (s *Session) ScreenContains(text string) bool {
	if s.OnScreenContains != nil {
		return s.OnScreenContains(text)
	}
	return false
}

func (s *Session) FillFieldByLabel(label, value string) bool {
	s.mu.Lock()
	if s.Filled == nil {
		s.Filled = make(map[string]string)
	}
	s.Filled[label] = value
	s.mu.Unlock()
	if s.OnFillByLabel != nil {
		return s.OnFillByLabel(label, value)
	}
	return true
}

func (s *Session) FillFieldAtPosition(row, col int, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Filled == nil {
		s.Filled = make(map[string]string)
	}
	s.Filled[fmt.Sprintf("@%d,%d", row, col)] = value
	return true
}

func (s *Session) TypeText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Typed = append(s.Typed, text)
	return nil
}

func (s *Session) Submit() error {
	s.mu.Lock()
	s.Submits++
	s.mu.Unlock()
	if s.OnSubmit != nil {
		return s.OnSubmit()
	}
	return nil
}

func (s *Session) ProgramFunction(n int) error {
	s.mu.Lock()
	s.PFs = append(s.PFs, n)
	s.mu.Unlock()
	if s.OnPF != nil {
		return s.OnPF(n)
	}
	return nil
}

func (s *Session) ProgramAttention(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PAs = append(s.PAs, n)
	return nil
}

func (s *Session) FormattedScreen() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Screen
}

func (s *Session) SendRaw(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return emulator.ErrSessionClosed
	}
	s.RawInput = append(s.RawInput, data)
	return nil
}

func (s *Session) Notify(fn func(screen string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// PushScreen simulates a host screen update, delivering it to the registered
// callback.
func (s *Session) PushScreen(screen string) {
	s.mu.Lock()
	s.Screen = screen
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(screen)
	}
}

func (s *Session) Drop() error {
	s.mu.Lock()
	s.dropped = true
	s.mu.Unlock()
	if s.OnDrop != nil {
		return s.OnDrop()
	}
	return nil
}

// Dropped reports whether Drop was called.
func (s *Session) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// SubmitCount returns how many times Submit was called.
func (s *Session) SubmitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Submits
}

// Opener is a scriptable emulator.Opener for tests.
type Opener struct {
	mu sync.Mutex

	// OpenErr, when set, is consulted by requested session name; a nil entry
	// or missing name means success. Keyed by name rather than call order
	// because concurrent workers open sessions in no particular order.
	OpenErr map[string]error

	// Configure, when set, is called on each newly opened session.
	Configure func(n int, s *Session)

	Opened []*Session
	Opts   []emulator.Options // options of every Open call, success or not
	calls  int
}

var _ emulator.Opener = (*Opener)(nil)

func (o *Opener) Open(_ context.Context, opts emulator.Options) (emulator.Session, error) {
	o.mu.Lock()
	n := o.calls
	o.calls++
	o.Opts = append(o.Opts, opts)
	if err, ok := o.OpenErr[opts.Name]; ok && err != nil {
		o.mu.Unlock()
		return nil, err
	}
	s := NewSession(opts.Name)
	o.Opened = append(o.Opened, s)
	o.mu.Unlock()
	if o.Configure != nil {
		o.Configure(n, s)
	}
	return s, nil
}

// OpenCount returns how many times Open was called.
func (o *Opener) OpenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}
