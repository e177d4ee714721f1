// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	mu     sync.Mutex
	pauses []PauseEvent
}

func (c *collectSink) Status(StatusEvent)         {}
func (c *collectSink) Progress(ProgressEvent)     {}
func (c *collectSink) ItemResult(ItemResultEvent) {}
func (c *collectSink) PauseState(ev PauseEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauses = append(c.pauses, ev)
}

func (c *collectSink) pauseEvents() []PauseEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PauseEvent, len(c.pauses))
	copy(out, c.pauses)
	return out
}

func TestGatePassesWhenRunning(t *testing.T) {
	rt := NewRuntime("s1", "e1", "login", nil)
	assert.True(t, rt.Gate(context.Background()))
}

func TestGateBlocksWhilePaused(t *testing.T) {
	sink := &collectSink{}
	rt := NewRuntime("s1", "e1", "login", sink)
	rt.Pause("operator check")
	require.True(t, rt.IsPaused())

	passed := make(chan bool, 1)
	go func() { passed <- rt.Gate(context.Background()) }()

	select {
	case <-passed:
		t.Fatal("gate passed while paused")
	case <-time.After(100 * time.Millisecond):
	}

	rt.Resume()
	select {
	case ok := <-passed:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("gate did not open after resume")
	}

	events := sink.pauseEvents()
	require.Len(t, events, 2)
	assert.True(t, events[0].Paused)
	assert.Equal(t, "operator check", events[0].Message)
	assert.False(t, events[1].Paused)
}

func TestCancelUnblocksPausedGate(t *testing.T) {
	rt := NewRuntime("s1", "e1", "login", nil)
	rt.Pause("hold")

	passed := make(chan bool, 1)
	go func() { passed <- rt.Gate(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	rt.Cancel()

	select {
	case ok := <-passed:
		assert.False(t, ok, "cancelled gate must report stop")
	case <-time.After(2 * time.Second):
		t.Fatal("gate did not observe cancellation")
	}
	assert.True(t, rt.IsCancelled())
	assert.False(t, rt.IsPaused())
}

func TestGateObservesContextCancel(t *testing.T) {
	rt := NewRuntime("s1", "e1", "login", nil)
	rt.Pause("hold")

	ctx, cancel := context.WithCancel(context.Background())
	passed := make(chan bool, 1)
	go func() { passed <- rt.Gate(ctx) }()

	cancel()
	select {
	case ok := <-passed:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("gate did not observe context cancellation")
	}
}

func TestPauseAfterCancelIsIgnored(t *testing.T) {
	rt := NewRuntime("s1", "e1", "login", nil)
	rt.Cancel()
	rt.Pause("too late")
	assert.False(t, rt.IsPaused())
	assert.True(t, rt.Gate(context.Background()) == false)
}

func TestShotsAccumulator(t *testing.T) {
	shots := &Shots{}
	term := staticScreen("MENU SCREEN")
	shots.Capture(term, "menu")
	shots.Capture(term, "detail")
	require.Len(t, shots.List(), 2)
	assert.Equal(t, "menu", shots.List()[0].Label)
	assert.Equal(t, "MENU SCREEN", shots.List()[0].Screen)

	shots.Reset()
	assert.Empty(t, shots.List())
}

// staticScreen is a minimal Terminal stub for capture tests.
type staticScreen string

func (s staticScreen) WaitForText(context.Context, string, time.Duration) bool { return true }
func (s staticScreen) ScreenContains(string) bool                              { return false }
func (s staticScreen) FillFieldByLabel(string, string) bool                    { return true }
func (s staticScreen) FillFieldAtPosition(int, int, string) bool               { return true }
func (s staticScreen) TypeText(string) error                                   { return nil }
func (s staticScreen) Submit() error                                           { return nil }
func (s staticScreen) ProgramFunction(int) error                               { return nil }
func (s staticScreen) ProgramAttention(int) error                              { return nil }
func (s staticScreen) FormattedScreen() string                                 { return string(s) }
