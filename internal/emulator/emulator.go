// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package emulator defines the facade through which the gateway drives the
// external 3270 terminal emulator. The gateway never speaks TN3270 itself;
// everything goes through these ports.
package emulator

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by emulator implementations.
var (
	ErrConnectFailed = errors.New("emulator: connect failed")
	ErrFieldNotFound = errors.New("emulator: field not found")
	ErrSessionClosed = errors.New("emulator: session closed")
)

// Options describe how to open an emulator session.
type Options struct {
	Name         string // emulator session name, unique per live session
	Host         string
	Port         int
	Secure       bool
	TerminalType string
	MaxWait      time.Duration // default upper bound for screen waits
	WaitSleep    time.Duration // poll interval for screen waits
}

// Terminal is the screen-level automation surface of one emulator session.
type Terminal interface {
	// WaitForText polls the screen until text appears or timeout elapses.
	WaitForText(ctx context.Context, text string, timeout time.Duration) bool

	// ScreenContains reports whether the current screen shows text.
	ScreenContains(text string) bool

	// FillFieldByLabel writes value into the input field following the given
	// label. Returns false when no such labelled field exists.
	FillFieldByLabel(label, value string) bool

	// FillFieldAtPosition writes value into the field at row/col (1-based).
	FillFieldAtPosition(row, col int, value string) bool

	// TypeText types value at the current cursor position.
	TypeText(text string) error

	// Submit sends ENTER.
	Submit() error

	// ProgramFunction sends PF<n>.
	ProgramFunction(n int) error

	// ProgramAttention sends PA<n>.
	ProgramAttention(n int) error

	// FormattedScreen returns the current screen as displayed text.
	FormattedScreen() string
}

// Session is a live emulator connection: the automation surface plus the raw
// data plane used by the interactive terminal relay.
type Session interface {
	Terminal

	// Name returns the emulator session name.
	Name() string

	// SendRaw forwards raw keyboard input from the client.
	SendRaw(data string) error

	// Notify registers the callback invoked with the rendered screen after
	// each host update. Only one callback is active at a time.
	Notify(fn func(screen string))

	// Drop terminates the session and releases the emulator slot.
	Drop() error
}

// Opener creates emulator sessions. The parallel executor uses it to open one
// fresh session per worker.
type Opener interface {
	Open(ctx context.Context, opts Options) (Session, error)
}
