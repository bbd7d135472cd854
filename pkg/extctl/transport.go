// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Transport carries datagrams to and from the controller. Send must be safe
// for concurrent use; Receive and Drain are only called from one goroutine.
type Transport interface {
	Send(p []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Drain() int
	Close() error
	String() string
}

// UDPTransport is a Transport over a connected UDP socket
type UDPTransport struct {
	conn *net.UDPConn
	addr *net.UDPAddr
	buf  []byte
}

// drainWait bounds each read while flushing queued datagrams
const drainWait = time.Millisecond

// DialUDP opens a UDP socket towards host:port. A zero port means FixedPort.
func DialUDP(host string, port int) (*UDPTransport, error) {
	if port == 0 {
		port = FixedPort
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve controller address %s: %w", host, err)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket to %s: %w", addr, err)
	}

	return &UDPTransport{
		conn: conn,
		addr: addr,
		buf:  make([]byte, MaxDatagram),
	}, nil
}

// Send writes one datagram. UDP writes are fire-and-forget.
func (t *UDPTransport) Send(p []byte) error {
	if _, err := t.conn.Write(p); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrSessionClosed
		}
		return fmt.Errorf("send to %s failed: %w", t.addr, err)
	}
	return nil
}

// Receive reads one datagram, waiting at most timeout.
// Returns ErrTimeout when the deadline passes.
func (t *UDPTransport) Receive(timeout time.Duration) ([]byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrSessionClosed
		}
		return nil, err
	}

	n, err := t.conn.Read(t.buf)
	if err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return nil, ErrTimeout
		case errors.Is(err, net.ErrClosed):
			return nil, ErrSessionClosed
		}
		return nil, fmt.Errorf("receive from %s failed: %w", t.addr, err)
	}

	data := make([]byte, n)
	copy(data, t.buf[:n])
	return data, nil
}

// Drain discards datagrams already queued on the socket and returns how many
// were dropped. Used before a command so its reply is not confused with a
// reply to an earlier heartbeat.
func (t *UDPTransport) Drain() int {
	dropped := 0
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(drainWait)); err != nil {
			return dropped
		}
		if _, err := t.conn.Read(t.buf); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return dropped
			}
			// ICMP errors on a connected socket surface on read; skip them
			if errors.Is(err, net.ErrClosed) {
				return dropped
			}
			continue
		}
		dropped++
	}
}

// Close closes the socket
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// LocalAddr returns the local socket address
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// String describes the transport for logs and headers
func (t *UDPTransport) String() string {
	return fmt.Sprintf("UDP: %s", t.addr)
}
