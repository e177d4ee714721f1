// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package channels mirrors session traffic to Valkey pub/sub channels so
// sidecar consumers (recorders, monitors) can observe sessions without
// holding the WebSocket.
package channels

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/metrics"
)

// ControlChannel receives gateway-level control requests.
const ControlChannel = "gateway.control"

// OutputChannel returns the per-session terminal output channel name.
func OutputChannel(sessionID string) string {
	return fmt.Sprintf("pty.output.%s", sessionID)
}

// InputChannel returns the per-session input channel name.
func InputChannel(sessionID string) string {
	return fmt.Sprintf("pty.input.%s", sessionID)
}

// EventChannel returns the per-session AST event channel name.
func EventChannel(sessionID string) string {
	return fmt.Sprintf("ast.events.%s", sessionID)
}

// Mirror publishes session traffic to Valkey. All publishes are best effort;
// a nil Mirror is a no-op so callers never need to branch on configuration.
type Mirror struct {
	client *redis.Client
}

// NewMirror connects a mirror to the given Valkey instance.
func NewMirror(addr, password string, db int) *Mirror {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Mirror{client: client}
}

// Ping verifies connectivity.
func (m *Mirror) Ping(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.client.Ping(ctx).Err()
}

// PublishOutput mirrors one terminal output frame.
func (m *Mirror) PublishOutput(ctx context.Context, sessionID, data string) {
	m.publish(ctx, OutputChannel(sessionID), []byte(data))
}

// PublishEvent mirrors one serialized AST event frame.
func (m *Mirror) PublishEvent(ctx context.Context, sessionID string, payload []byte) {
	m.publish(ctx, EventChannel(sessionID), payload)
}

func (m *Mirror) publish(ctx context.Context, channel string, payload []byte) {
	if m == nil {
		return
	}
	if err := m.client.Publish(ctx, channel, payload).Err(); err != nil {
		metrics.MirrorPublishes.WithLabelValues("error").Inc()
		log.WithComponentFromContext(ctx, "channels").Warn().Err(err).
			Str("channel", channel).
			Msg("mirror publish failed, continuing")
		return
	}
	metrics.MirrorPublishes.WithLabelValues("ok").Inc()
}

// SubscribeControl starts consuming the gateway control channel, invoking
// handler for each payload until ctx is cancelled.
func (m *Mirror) SubscribeControl(ctx context.Context, handler func(payload []byte)) {
	if m == nil {
		return
	}
	sub := m.client.Subscribe(ctx, ControlChannel)
	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
}

// Close releases the client.
func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
