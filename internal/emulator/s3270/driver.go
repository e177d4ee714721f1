// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package s3270 drives a 3270 emulator through the s3270 scripting binary
// from the x3270 suite. Each session owns one child process and speaks the
// line protocol on its stdin/stdout: a command, zero or more "data:" lines,
// a status line, then "ok" or "error".
package s3270

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
)

const (
	defaultBinary    = "s3270"
	defaultMaxWait   = 30 * time.Second
	defaultWaitSleep = 200 * time.Millisecond
)

// Driver opens emulator sessions backed by s3270 processes.
type Driver struct {
	// Binary is the s3270 executable, default "s3270".
	Binary string
}

var _ emulator.Opener = (*Driver)(nil)

// Open starts an s3270 process and connects it to the configured host.
func (d *Driver) Open(ctx context.Context, opts emulator.Options) (emulator.Session, error) {
	binary := d.Binary
	if binary == "" {
		binary = defaultBinary
	}
	args := []string{"-utf8"}
	if opts.TerminalType != "" {
		args = append(args, "-tn", opts.TerminalType)
	}

	cmd := exec.Command(binary, args...) // #nosec G204 -- binary comes from deployment config
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("s3270 stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("s3270 stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start s3270: %w", err)
	}

	s := &session{
		name:      opts.Name,
		cmd:       cmd,
		in:        stdin,
		out:       bufio.NewReader(stdout),
		maxWait:   opts.MaxWait,
		waitSleep: opts.WaitSleep,
		stop:      make(chan struct{}),
		logger: log.WithComponent("s3270").With().
			Str(log.FieldEmulatorSession, opts.Name).
			Logger(),
	}
	if s.maxWait <= 0 {
		s.maxWait = defaultMaxWait
	}
	if s.waitSleep <= 0 {
		s.waitSleep = defaultWaitSleep
	}

	target := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	if opts.Secure {
		target = "L:" + target
	}
	if _, err := s.run(fmt.Sprintf("Connect(%s)", target)); err != nil {
		_ = s.Drop()
		return nil, fmt.Errorf("%w: %s: %v", emulator.ErrConnectFailed, target, err)
	}
	if _, err := s.run("Wait(InputField)"); err != nil {
		s.logger.Warn().Err(err).Msg("host input field not ready after connect")
	}

	select {
	case <-ctx.Done():
		_ = s.Drop()
		return nil, ctx.Err()
	default:
	}

	go s.pollScreens()
	return s, nil
}

type session struct {
	name      string
	cmd       *exec.Cmd
	maxWait   time.Duration
	waitSleep time.Duration
	logger    zerolog.Logger

	ioMu sync.Mutex // serialises the command/response exchange
	in   io.WriteCloser
	out  *bufio.Reader

	stateMu  sync.Mutex
	notify   func(string)
	lastSeen string
	closed   bool
	stop     chan struct{}
}

var _ emulator.Session = (*session)(nil)

func (s *session) Name() string { return s.name }

// run sends one action and collects its data lines. An "error" terminator
// turns the data lines into the error message.
func (s *session) run(action string) ([]string, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if s.isClosed() {
		return nil, emulator.ErrSessionClosed
	}
	if _, err := io.WriteString(s.in, action+"\n"); err != nil {
		return nil, fmt.Errorf("write %q: %w", action, err)
	}

	var data []string
	for {
		line, err := s.out.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read response to %q: %w", action, err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		case line == "ok":
			return data, nil
		case line == "error":
			return nil, fmt.Errorf("%q failed: %s", action, strings.Join(data, " "))
		default:
			// status line; not interpreted
		}
	}
}

func (s *session) screen() string {
	rows, err := s.run("Ascii()")
	if err != nil {
		return ""
	}
	return strings.Join(rows, "\n")
}

func (s *session) FormattedScreen() string {
	return s.screen()
}

func (s *session) ScreenContains(text string) bool {
	return strings.Contains(s.screen(), text)
}

func (s *session) WaitForText(ctx context.Context, text string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.maxWait
	}
	deadline := time.Now().Add(timeout)
	for {
		if s.ScreenContains(text) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.stop:
			return false
		case <-time.After(s.waitSleep):
		}
	}
}

// FillFieldByLabel locates label on screen and types value into the input
// field that follows it on the same row.
func (s *session) FillFieldByLabel(label, value string) bool {
	rows, err := s.run("Ascii()")
	if err != nil {
		return false
	}
	for rowIdx, row := range rows {
		colIdx := strings.Index(row, label)
		if colIdx < 0 {
			continue
		}
		// Cursor lands just past the label text; the host positions the
		// field's first input cell there (or unprotects the next cell).
		col := colIdx + len(label) + 1
		if _, err := s.run(fmt.Sprintf("MoveCursor(%d,%d)", rowIdx, col)); err != nil {
			return false
		}
		if _, err := s.run("Wait(InputField)"); err != nil {
			return false
		}
		if _, err := s.run(fmt.Sprintf("String(%q)", value)); err != nil {
			return false
		}
		return true
	}
	return false
}

func (s *session) FillFieldAtPosition(row, col int, value string) bool {
	// Callers use 1-based screen coordinates; s3270 is 0-based.
	if _, err := s.run(fmt.Sprintf("MoveCursor(%d,%d)", row-1, col-1)); err != nil {
		return false
	}
	if _, err := s.run(fmt.Sprintf("String(%q)", value)); err != nil {
		return false
	}
	return true
}

func (s *session) TypeText(text string) error {
	_, err := s.run(fmt.Sprintf("String(%q)", text))
	return err
}

func (s *session) Submit() error {
	if _, err := s.run("Enter"); err != nil {
		return err
	}
	_, err := s.run("Wait(Output)")
	return err
}

func (s *session) ProgramFunction(n int) error {
	if _, err := s.run(fmt.Sprintf("PF(%d)", n)); err != nil {
		return err
	}
	_, err := s.run("Wait(Output)")
	return err
}

func (s *session) ProgramAttention(n int) error {
	_, err := s.run(fmt.Sprintf("PA(%d)", n))
	return err
}

func (s *session) SendRaw(data string) error {
	// Interactive input arrives as plain text with \r marking ENTER.
	for i, chunk := range strings.Split(data, "\r") {
		if i > 0 {
			if _, err := s.run("Enter"); err != nil {
				return err
			}
		}
		if chunk == "" {
			continue
		}
		if _, err := s.run(fmt.Sprintf("String(%q)", chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Notify(fn func(screen string)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.notify = fn
}

// pollScreens pushes screen changes to the registered callback. s3270 has no
// unsolicited output mode, so changes are detected by polling.
func (s *session) pollScreens() {
	ticker := time.NewTicker(s.waitSleep)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		s.stateMu.Lock()
		fn := s.notify
		s.stateMu.Unlock()
		if fn == nil {
			continue
		}

		screen := s.screen()
		s.stateMu.Lock()
		changed := screen != "" && screen != s.lastSeen
		if changed {
			s.lastSeen = screen
		}
		s.stateMu.Unlock()
		if changed {
			fn(screen)
		}
	}
}

func (s *session) isClosed() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.closed
}

func (s *session) Drop() error {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.stateMu.Unlock()

	s.ioMu.Lock()
	_, _ = io.WriteString(s.in, "Quit\n")
	_ = s.in.Close()
	s.ioMu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		_ = s.cmd.Process.Kill()
		return <-done
	}
}
