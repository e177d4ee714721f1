// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model defines session states, destruction reasons and identifier
// validation.
package model

import "regexp"

// State is the lifecycle state of a session.
type State string

const (
	// StateAttached means a transport is connected.
	StateAttached State = "attached"
	// StateDetached means the transport dropped and the grace timer runs.
	StateDetached State = "detached"
	// StateDestroyed is terminal.
	StateDestroyed State = "destroyed"
)

// Destruction reasons, used in session.destroyed frames and metrics labels.
const (
	ReasonClientRequest = "client_request"
	ReasonGraceExpired  = "grace_expired"
	ReasonShutdown      = "shutdown"
	ReasonError         = "error"
)

// maxSessionIDLen bounds identifiers so they stay usable as channel names
// and store keys.
const maxSessionIDLen = 128

var safeSessionID = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// IsSafeSessionID reports whether id is acceptable as a session identifier.
func IsSafeSessionID(id string) bool {
	return id != "" && len(id) <= maxSessionIDLen && safeSessionID.MatchString(id)
}
