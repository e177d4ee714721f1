// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ast defines the automated-script contract: the hooks every script
// implements, the per-execution runtime (pause/cancel/events), the result
// model and the script registry.
package ast

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/protocol"
)

// Item is one unit of work. Scripts decide its concrete type; the executors
// treat it as opaque and use ItemID/ValidateItem for identity and validity.
type Item any

// Credentials are the host credentials of a run.
type Credentials struct {
	Username string
	Password string
}

// Info is the static description of a script.
type Info struct {
	Name             string
	Description      string
	SupportsParallel bool

	// Host sign-on parameters used by the default authentication flow.
	AuthKeywords []string
	Application  string
	Group        string
}

// Script is the contract every automated script implements. Hooks must not
// retain the terminal or the shots accumulator beyond the call; in parallel
// mode each worker passes its own.
type Script interface {
	// Info returns the script's static description.
	Info() Info

	// PrepareItems resolves the run parameters into the work list. Called
	// once before any emulator interaction.
	PrepareItems(ctx context.Context, rt *Runtime, params protocol.RunParams) ([]Item, error)

	// ValidateItem reports whether an item is well-formed.
	ValidateItem(item Item) bool

	// ItemID returns the stable identifier of an item.
	ItemID(item Item) string

	// Authenticate signs the terminal on. Called once per emulator session.
	Authenticate(ctx context.Context, term emulator.Terminal, creds Credentials) error

	// ProcessSingleItem processes one item on an authenticated terminal.
	// index is 1-based within the worker's batch; total is the batch size.
	ProcessSingleItem(ctx context.Context, term emulator.Terminal, shots *Shots, item Item, index, total int) (map[string]any, error)

	// Logoff signs the terminal off. Called once per emulator session, also
	// after failures.
	Logoff(ctx context.Context, term emulator.Terminal) error
}

// Shots accumulates labelled screen captures for the item currently being
// processed. Each worker owns exactly one accumulator; it is not safe for
// concurrent use.
type Shots struct {
	shots []Shot
}

// Capture records the terminal's current screen under label.
func (s *Shots) Capture(term emulator.Terminal, label string) {
	s.shots = append(s.shots, Shot{Label: label, Screen: term.FormattedScreen()})
}

// Reset discards all captures.
func (s *Shots) Reset() {
	s.shots = s.shots[:0]
}

// List returns the captures taken since the last Reset.
func (s *Shots) List() []Shot {
	out := make([]Shot, len(s.shots))
	copy(out, s.shots)
	return out
}

// AuthDefaults are the screen-wait parameters of the default sign-on flow.
type AuthDefaults struct {
	MaxWait   time.Duration
	WaitSleep time.Duration
}

func (d AuthDefaults) withDefaults() AuthDefaults {
	if d.MaxWait <= 0 {
		d.MaxWait = 30 * time.Second
	}
	if d.WaitSleep <= 0 {
		d.WaitSleep = 200 * time.Millisecond
	}
	return d
}

// SignOn is the default authentication flow shared by the built-in scripts:
// skip when an expected keyword is already on screen, otherwise fill the
// sign-on fields, submit, and wait for any expected keyword.
func SignOn(ctx context.Context, term emulator.Terminal, creds Credentials, info Info, waits AuthDefaults) error {
	waits = waits.withDefaults()

	if screenHasAny(term, info.AuthKeywords) {
		return nil
	}

	fields := []struct{ label, value string }{
		{"Userid", creds.Username},
		{"Password", creds.Password},
		{"Application", info.Application},
		{"Group", info.Group},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if !term.FillFieldByLabel(f.label, f.value) {
			return fmt.Errorf("sign-on field %q not found: %w", f.label, emulator.ErrFieldNotFound)
		}
	}
	if err := term.Submit(); err != nil {
		return fmt.Errorf("submit sign-on: %w", err)
	}

	deadline := time.Now().Add(waits.MaxWait)
	for {
		if screenHasAny(term, info.AuthKeywords) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("sign-on: expected screen not reached within %s", waits.MaxWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waits.WaitSleep):
		}
	}
}

func screenHasAny(term emulator.Terminal, keywords []string) bool {
	for _, kw := range keywords {
		if term.ScreenContains(kw) {
			return true
		}
	}
	return false
}
