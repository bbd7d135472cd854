// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package bridge

import (
	"net"
	"testing"
	"time"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

// udpController echoes every command with a clean IDLE status
type udpController struct {
	conn *net.UDPConn
	done chan struct{}
}

func newUDPController(t *testing.T) *udpController {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	uc := &udpController{conn: conn, done: make(chan struct{})}
	go uc.serve()
	t.Cleanup(func() {
		conn.Close()
		<-uc.done
	})
	return uc
}

func (uc *udpController) port() int {
	return uc.conn.LocalAddr().(*net.UDPAddr).Port
}

func (uc *udpController) serve() {
	defer close(uc.done)
	buf := make([]byte, extctl.MaxDatagram)
	for {
		n, from, err := uc.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cmd, err := extctl.DecodeCommand(buf[:n])
		if err != nil {
			continue
		}
		st := &extctl.Status{
			Timestamp:   time.Now().UnixMilli(),
			SeqSent:     cmd.Sequence,
			SeqReceived: cmd.Sequence,
			AutActive:   true,
			AutReady:    true,
			AppState:    extctl.AppStateIdle,
		}
		_, _ = uc.conn.WriteToUDP(st.Encode(), from)
	}
}
