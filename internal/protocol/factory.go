// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package protocol

// NewDataMessage builds a terminal data frame.
func NewDataMessage(sessionID, data string) Message {
	return Message{Type: TypeData, SessionID: sessionID, Timestamp: now(), Data: data}
}

// NewPongMessage answers a ping, echoing the ping's timestamp when present.
func NewPongMessage(sessionID string, pingTimestamp int64) Message {
	ts := pingTimestamp
	if ts == 0 {
		ts = now()
	}
	return Message{Type: TypePong, SessionID: sessionID, Timestamp: ts}
}

// NewErrorMessage builds an error frame with a coded payload.
func NewErrorMessage(sessionID, code, message string) Message {
	return Message{
		Type:      TypeError,
		SessionID: sessionID,
		Timestamp: now(),
		Meta:      mustMeta(ErrorMeta{Code: code, Message: message}),
	}
}

// NewSessionCreatedMessage builds a session.created ack.
func NewSessionCreatedMessage(sessionID string, reattached bool) Message {
	return Message{
		Type:      TypeSessionCreated,
		SessionID: sessionID,
		Timestamp: now(),
		Meta:      mustMeta(SessionCreatedMeta{Reattached: reattached}),
	}
}

// NewSessionDestroyedMessage builds a session.destroyed notification.
func NewSessionDestroyedMessage(sessionID, reason string) Message {
	return Message{
		Type:      TypeSessionDestroyed,
		SessionID: sessionID,
		Timestamp: now(),
		Meta:      mustMeta(SessionDestroyedMeta{Reason: reason}),
	}
}

// NewASTStatusMessage builds an ast.status event frame.
func NewASTStatusMessage(sessionID string, meta ASTStatusMeta) Message {
	return Message{Type: TypeASTStatus, SessionID: sessionID, Timestamp: now(), Meta: mustMeta(meta)}
}

// NewASTProgressMessage builds an ast.progress event frame.
func NewASTProgressMessage(sessionID string, meta ASTProgressMeta) Message {
	return Message{Type: TypeASTProgress, SessionID: sessionID, Timestamp: now(), Meta: mustMeta(meta)}
}

// NewASTItemResultMessage builds an ast.itemResult event frame.
func NewASTItemResultMessage(sessionID string, meta ASTItemResultMeta) Message {
	return Message{Type: TypeASTItemResult, SessionID: sessionID, Timestamp: now(), Meta: mustMeta(meta)}
}

// NewASTPausedMessage builds an ast.paused event frame.
func NewASTPausedMessage(sessionID string, meta ASTPausedMeta) Message {
	return Message{Type: TypeASTPaused, SessionID: sessionID, Timestamp: now(), Meta: mustMeta(meta)}
}
