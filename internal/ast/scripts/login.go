// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package scripts contains the built-in automated scripts.
package scripts

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/protocol"
)

// Fire-system sign-on parameters shared by the built-in scripts.
var fireAuth = struct {
	keywords    []string
	application string
	group       string
}{
	keywords:    []string{"Fire System Selection"},
	application: "FIRE06",
	group:       "@OOFIRE",
}

const (
	exitMenuText    = "Exit Menu"
	signonText      = "Sign-on"
	logoffMaxPF     = 20
	logoffWaitSlice = 800 * time.Millisecond
)

// Login displays a list of policies one by one, capturing each policy screen.
type Login struct {
	Auth ast.AuthDefaults
}

var _ ast.Script = (*Login)(nil)

func (s *Login) Info() ast.Info {
	return ast.Info{
		Name:             "login",
		Description:      "Signs on to the Fire system and displays each policy",
		SupportsParallel: true,
		AuthKeywords:     fireAuth.keywords,
		Application:      fireAuth.application,
		Group:            fireAuth.group,
	}
}

func (s *Login) PrepareItems(_ context.Context, _ *ast.Runtime, params protocol.RunParams) ([]ast.Item, error) {
	policies := params.ItemList()
	items := make([]ast.Item, 0, len(policies))
	for _, policy := range policies {
		items = append(items, policy)
	}
	return items, nil
}

// ValidateItem accepts 9-character alphanumeric policy numbers.
func (s *Login) ValidateItem(item ast.Item) bool {
	policy, ok := item.(string)
	return ok && isAlnum(policy, 9)
}

func (s *Login) ItemID(item ast.Item) string {
	policy, _ := item.(string)
	return policy
}

func (s *Login) Authenticate(ctx context.Context, term emulator.Terminal, creds ast.Credentials) error {
	return ast.SignOn(ctx, term, creds, s.Info(), s.Auth)
}

func (s *Login) ProcessSingleItem(ctx context.Context, term emulator.Terminal, shots *ast.Shots, item ast.Item, index, total int) (map[string]any, error) {
	policy := item.(string)
	auth := s.Auth

	if !term.FillFieldByLabel("Policy", policy) {
		return nil, fmt.Errorf("policy input field not found: %w", emulator.ErrFieldNotFound)
	}
	if err := term.Submit(); err != nil {
		return nil, fmt.Errorf("submit policy %s: %w", policy, err)
	}
	if !term.WaitForText(ctx, policy, auth.MaxWait) {
		return nil, fmt.Errorf("policy %s: detail screen not reached", policy)
	}
	shots.Capture(term, "policy")

	// Back to the selection screen for the next item.
	if err := term.ProgramFunction(3); err != nil {
		return nil, fmt.Errorf("return from policy %s: %w", policy, err)
	}

	return map[string]any{
		"policyNumber": policy,
		"status":       "active",
	}, nil
}

// Logoff backs out to the exit menu with PF15, then confirms the sign-off.
func (s *Login) Logoff(ctx context.Context, term emulator.Terminal) error {
	logger := log.WithComponentFromContext(ctx, "ast.login")

	found := term.ScreenContains(exitMenuText)
	for i := 0; i < logoffMaxPF && !found; i++ {
		if err := term.ProgramFunction(15); err != nil {
			return fmt.Errorf("PF15: %w", err)
		}
		found = term.WaitForText(ctx, exitMenuText, logoffWaitSlice)
	}
	if !found {
		return fmt.Errorf("exit menu not reached after %d PF15 presses", logoffMaxPF)
	}

	if !term.FillFieldAtPosition(36, 5, "1") {
		return fmt.Errorf("exit menu option field not found: %w", emulator.ErrFieldNotFound)
	}
	if err := term.Submit(); err != nil {
		return fmt.Errorf("confirm sign-off: %w", err)
	}
	if !term.WaitForText(ctx, signonText, s.Auth.MaxWait) {
		logger.Warn().Msg("sign-on screen not confirmed after sign-off")
	}
	return nil
}

func isAlnum(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
