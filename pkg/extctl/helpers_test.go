// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"net"
	"sync"
	"testing"
	"time"
)

// okStatus returns a clean status acknowledging seq
func okStatus(seq uint64) *Status {
	return &Status{
		Timestamp:   time.Now().UnixMilli(),
		SeqSent:     seq,
		SeqReceived: seq,
		AutActive:   true,
		AutReady:    true,
		AppState:    AppStateIdle,
	}
}

// echoReply acknowledges every command with a clean status
func echoReply(cmd Command) ([]byte, bool) {
	return okStatus(cmd.Sequence).Encode(), true
}

// fakeTransport is an in-memory Transport. Replies produced by respond are
// queued and handed out by Receive; Receive never blocks.
type fakeTransport struct {
	mu       sync.Mutex
	sent     [][]byte
	pending  [][]byte
	respond  func(cmd Command) ([]byte, bool)
	sendErr  error
	closed   bool
	drained  int
	receives int
}

func newFakeTransport(respond func(cmd Command) ([]byte, bool)) *fakeTransport {
	return &fakeTransport{respond: respond}
}

func (f *fakeTransport) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrSessionClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	if f.respond != nil {
		cmd, err := DecodeCommand(p)
		if err == nil {
			if reply, ok := f.respond(cmd); ok {
				f.pending = append(f.pending, reply)
			}
		}
	}
	return nil
}

func (f *fakeTransport) Receive(time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	if f.closed {
		return nil, ErrSessionClosed
	}
	if len(f.pending) == 0 {
		return nil, ErrTimeout
	}
	reply := f.pending[0]
	f.pending = f.pending[1:]
	return reply, nil
}

func (f *fakeTransport) Drain() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.pending)
	f.pending = nil
	f.drained += n
	return n
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) String() string { return "fake" }

// commands decodes everything sent so far
func (f *fakeTransport) commands(t *testing.T) []Command {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	cmds := make([]Command, 0, len(f.sent))
	for _, raw := range f.sent {
		cmd, err := DecodeCommand(raw)
		if err != nil {
			t.Fatalf("sent datagram %q does not decode: %v", raw, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) sentBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.sent {
		n += len(p)
	}
	return n
}

func (f *fakeTransport) receiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receives
}

// fakeController is a UDP controller simulator on the loopback interface
type fakeController struct {
	conn    *net.UDPConn
	respond func(cmd Command) ([]byte, bool)

	mu       sync.Mutex
	received []Command
	done     chan struct{}
}

func startFakeController(t *testing.T, respond func(cmd Command) ([]byte, bool)) *fakeController {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	fc := &fakeController{conn: conn, respond: respond, done: make(chan struct{})}
	go fc.serve()
	t.Cleanup(fc.close)
	return fc
}

func (fc *fakeController) port() int {
	return fc.conn.LocalAddr().(*net.UDPAddr).Port
}

func (fc *fakeController) serve() {
	defer close(fc.done)
	buf := make([]byte, MaxDatagram)
	for {
		n, from, err := fc.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cmd, err := DecodeCommand(buf[:n])
		if err != nil {
			continue
		}
		fc.mu.Lock()
		fc.received = append(fc.received, cmd)
		fc.mu.Unlock()

		if fc.respond == nil {
			continue
		}
		if reply, ok := fc.respond(cmd); ok {
			fc.conn.WriteToUDP(reply, from)
		}
	}
}

func (fc *fakeController) commands() []Command {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]Command(nil), fc.received...)
}

func (fc *fakeController) close() {
	fc.conn.Close()
	<-fc.done
}
