// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package protocol defines the WebSocket wire format of the gateway: the
// message envelope, the typed meta payloads and the error code table.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the kind of a wire message.
type MessageType string

// Inbound message types.
const (
	TypeData           MessageType = "data"
	TypeResize         MessageType = "resize"
	TypePing           MessageType = "ping"
	TypeSessionCreate  MessageType = "session.create"
	TypeSessionDestroy MessageType = "session.destroy"
	TypeASTRun         MessageType = "ast.run"
	TypeASTCancel      MessageType = "ast.cancel"
	TypeASTPause       MessageType = "ast.pause"
	TypeASTResume      MessageType = "ast.resume"
)

// Outbound message types.
const (
	TypePong             MessageType = "pong"
	TypeError            MessageType = "error"
	TypeSessionCreated   MessageType = "session.created"
	TypeSessionDestroyed MessageType = "session.destroyed"
	TypeASTStatus        MessageType = "ast.status"
	TypeASTProgress      MessageType = "ast.progress"
	TypeASTItemResult    MessageType = "ast.itemResult"
	TypeASTPaused        MessageType = "ast.paused"
)

// Message is the wire envelope shared by all frames.
type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // unix milliseconds
	Data      string          `json:"data,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// Parse decodes a raw frame into a Message and rejects frames without a type.
func Parse(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("message has no type")
	}
	return msg, nil
}

// Encode serialises a message for the wire.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMeta decodes the meta payload of a message into the given typed struct.
func DecodeMeta(msg Message, into any) error {
	if len(msg.Meta) == 0 {
		return fmt.Errorf("%s message has no meta", msg.Type)
	}
	if err := json.Unmarshal(msg.Meta, into); err != nil {
		return fmt.Errorf("decode %s meta: %w", msg.Type, err)
	}
	return nil
}

func now() int64 {
	return time.Now().UnixMilli()
}

func mustMeta(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// Meta structs are plain data types; marshalling cannot fail at runtime.
		panic(fmt.Sprintf("marshal meta: %v", err))
	}
	return raw
}
