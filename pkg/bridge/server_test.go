// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

// fakeController answers every operation with a clean report, or err when set
type fakeController struct {
	mu        sync.Mutex
	seq       uint64
	heartbeat bool
	enable    bool
	err       error
	calls     []string
}

func (f *fakeController) report(op string, signal extctl.Signal, value bool) (*extctl.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if f.err != nil {
		return nil, f.err
	}
	f.seq++
	cmd := extctl.NewCommand(f.seq, signal, value)
	st := &extctl.Status{
		Timestamp:   cmd.Timestamp,
		SeqSent:     f.seq,
		SeqReceived: f.seq,
		AutActive:   true,
		AutReady:    true,
		AppState:    extctl.AppStateIdle,
	}
	return extctl.NewReport(cmd, st, f.seq), nil
}

func (f *fakeController) GetState() (*extctl.Report, error) {
	return f.report(OpGetState, extctl.SignalGetState, true)
}

func (f *fakeController) AppStart() (*extctl.Report, error) {
	f.mu.Lock()
	f.heartbeat = f.enable
	f.mu.Unlock()
	return f.report(OpStart, extctl.SignalAppStart, true)
}

func (f *fakeController) AppStop() (*extctl.Report, error) {
	if !f.EnableSupported() {
		return nil, extctl.ErrUnsupportedOperation
	}
	f.mu.Lock()
	f.heartbeat = false
	f.mu.Unlock()
	return f.report(OpStop, extctl.SignalAppEnable, false)
}

func (f *fakeController) AppRestart() (*extctl.Report, error) {
	if _, err := f.AppStop(); err != nil {
		return nil, err
	}
	return f.AppStart()
}

func (f *fakeController) AppEnable(report bool) (*extctl.Report, error) {
	r, err := f.report(OpEnable, extctl.SignalAppEnable, true)
	if !report {
		return nil, err
	}
	return r, err
}

func (f *fakeController) HeartbeatRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeat
}

func (f *fakeController) EnableSupported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enable
}

func (f *fakeController) Sequence() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

func newTestServer(t *testing.T, ctl Controller, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(ctl, cfg, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req Request) Response {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.WriteJSON(req))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestBridge_Operations(t *testing.T) {
	ctl := &fakeController{enable: true}
	conn := dialWS(t, newTestServer(t, ctl, Config{}))

	resp := roundTrip(t, conn, Request{ID: "1", Op: OpGetState})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "1", resp.ID)
	require.NotNil(t, resp.Report)
	assert.Equal(t, "Get_State", resp.Report.Signal)
	assert.Equal(t, "IDLE", resp.Report.AppState)
	assert.Equal(t, "NO_ERROR", resp.Report.ErrorName)
	assert.False(t, resp.Report.SequenceMismatch)

	resp = roundTrip(t, conn, Request{Op: OpStart})
	require.True(t, resp.OK)
	assert.Equal(t, "App_Start", resp.Report.Signal)
	assert.True(t, ctl.HeartbeatRunning())

	resp = roundTrip(t, conn, Request{Op: OpStop})
	require.True(t, resp.OK)
	assert.Equal(t, "App_Enable", resp.Report.Signal)
	assert.False(t, resp.Report.Value)

	resp = roundTrip(t, conn, Request{Op: OpRestart})
	require.True(t, resp.OK)
	assert.Equal(t, "App_Start", resp.Report.Signal)

	resp = roundTrip(t, conn, Request{Op: OpEnable})
	require.True(t, resp.OK)
	assert.Nil(t, resp.Report, "enable without report returns no reply")

	resp = roundTrip(t, conn, Request{Op: OpEnable, Report: true})
	require.True(t, resp.OK)
	require.NotNil(t, resp.Report)

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	assert.Equal(t, []string{OpGetState, OpStart, OpStop, OpStop, OpStart, OpEnable, OpEnable}, ctl.calls)
}

func TestBridge_Errors(t *testing.T) {
	tests := []struct {
		name string
		ctl  *fakeController
		req  Request
		kind string
	}{
		{"unknown op", &fakeController{}, Request{Op: "halt"}, KindInvalidOp},
		{"stop unsupported", &fakeController{}, Request{Op: OpStop}, KindUnsupported},
		{"timeout", &fakeController{err: fmt.Errorf("Get_State (packet 1): %w", extctl.ErrTimeout)}, Request{Op: OpGetState}, KindTimeout},
		{"malformed", &fakeController{err: &extctl.MalformedReplyError{Field: "app_state"}}, Request{Op: OpGetState}, KindMalformed},
		{"closed", &fakeController{err: extctl.ErrSessionClosed}, Request{Op: OpStart}, KindClosed},
		{"transport", &fakeController{err: fmt.Errorf("network unreachable")}, Request{Op: OpStart}, KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialWS(t, newTestServer(t, tt.ctl, Config{}))
			resp := roundTrip(t, conn, tt.req)
			assert.False(t, resp.OK)
			assert.Equal(t, tt.kind, resp.ErrorKind)
			assert.NotEmpty(t, resp.Error)
			assert.Nil(t, resp.Report)
		})
	}
}

func TestBridge_InvalidJSONKeepsConnection(t *testing.T) {
	conn := dialWS(t, newTestServer(t, &fakeController{}, Config{}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var resp Response
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, KindInvalidOp, resp.ErrorKind)

	resp = roundTrip(t, conn, Request{Op: OpGetState})
	assert.True(t, resp.OK)
}

func TestBridge_Health(t *testing.T) {
	ctl := &fakeController{enable: true, heartbeat: true, seq: 12}
	srv := newTestServer(t, ctl, Config{})

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var h health
	require.NoError(t, json.NewDecoder(res.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.Heartbeat)
	assert.True(t, h.EnableSupported)
	assert.Equal(t, uint64(12), h.Sequence)
}

func TestBridge_Metrics(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, Config{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("sunlink_test 1\n"))
		}),
	})

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestBridge_RateLimit(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, Config{RateLimit: 2, RateWindow: time.Minute})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		res, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		res.Body.Close()
		codes = append(codes, res.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestBridge_RateLimitsMessages(t *testing.T) {
	ctl := &fakeController{}
	conn := dialWS(t, newTestServer(t, ctl, Config{RateLimit: 2, RateWindow: time.Minute}))

	var ok, limited int
	for i := 0; i < 10; i++ {
		resp := roundTrip(t, conn, Request{ID: fmt.Sprint(i), Op: OpGetState})
		assert.Equal(t, fmt.Sprint(i), resp.ID)
		if resp.OK {
			ok++
			continue
		}
		assert.Equal(t, KindRateLimited, resp.ErrorKind)
		limited++
	}

	assert.Equal(t, 2, ok)
	assert.Equal(t, 8, limited)

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	assert.Len(t, ctl.calls, 2, "limited messages never reach the controller")
}

func TestBridge_WithSession(t *testing.T) {
	fc := newUDPController(t)
	sess, err := extctl.New(extctl.Config{Host: "127.0.0.1", Port: fc.port(), Seed: 1})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	conn := dialWS(t, newTestServer(t, sess, Config{}))
	resp := roundTrip(t, conn, Request{Op: OpGetState})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, uint64(2), resp.Report.Sequence)
	assert.Equal(t, uint64(2), resp.Report.SeqReceived)

	resp = roundTrip(t, conn, Request{Op: OpStop})
	assert.Equal(t, KindUnsupported, resp.ErrorKind)
}
