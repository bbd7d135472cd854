// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

func status(seq uint64) *extctl.Status {
	return &extctl.Status{
		SeqSent:     seq,
		SeqReceived: seq,
		AutActive:   true,
		AutReady:    true,
		AppState:    extctl.AppStateRunning,
	}
}

func TestObserver_CommandSent(t *testing.T) {
	o := NewObserver()
	caller := PacketsSentTotal.WithLabelValues("Get_State", "caller")
	hb := PacketsSentTotal.WithLabelValues("App_Enable", "heartbeat")
	beforeCaller := testutil.ToFloat64(caller)
	beforeHB := testutil.ToFloat64(hb)

	o.CommandSent(extctl.NewCommand(1, extctl.SignalGetState, true), nil, false)
	o.CommandSent(extctl.NewCommand(2, extctl.SignalAppEnable, true), nil, true)
	o.CommandSent(extctl.NewCommand(3, extctl.SignalAppEnable, true), nil, true)

	assert.Equal(t, beforeCaller+1, testutil.ToFloat64(caller))
	assert.Equal(t, beforeHB+2, testutil.ToFloat64(hb))
}

func TestObserver_ReplyReceived(t *testing.T) {
	o := NewObserver()
	ok := RepliesTotal.WithLabelValues(ResultOK)
	fault := FaultsTotal.WithLabelValues("-3")
	beforeOK := testutil.ToFloat64(ok)
	beforeFault := testutil.ToFloat64(fault)
	beforeMismatch := testutil.ToFloat64(SequenceMismatchTotal)

	st := status(4)
	st.ErrorID = extctl.ErrorPacketCounterMismatch
	r := extctl.NewReport(extctl.NewCommand(5, extctl.SignalGetState, true), st, 5)
	r.RTT = 2 * time.Millisecond
	o.ReplyReceived(r)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(ok))
	assert.Equal(t, beforeFault+1, testutil.ToFloat64(fault))
	assert.Equal(t, beforeMismatch+1, testutil.ToFloat64(SequenceMismatchTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(AppState.WithLabelValues("RUNNING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(AppState.WithLabelValues("IDLE")))
	assert.Equal(t, 1, testutil.CollectAndCount(ReplyRTT))
}

func TestObserver_UnknownFaultCodesShareLabel(t *testing.T) {
	o := NewObserver()
	unknown := FaultsTotal.WithLabelValues(FaultUnknown)
	before := testutil.ToFloat64(unknown)
	series := testutil.CollectAndCount(FaultsTotal)

	for _, code := range []extctl.ErrorCode{-99, -1000, 42} {
		st := status(6)
		st.ErrorID = code
		o.ReplyReceived(extctl.NewReport(extctl.NewCommand(6, extctl.SignalGetState, true), st, 6))
	}

	assert.Equal(t, before+3, testutil.ToFloat64(unknown))
	assert.Equal(t, series, testutil.CollectAndCount(FaultsTotal), "no series per raw code")
	assert.Equal(t, "-7", faultLabel(extctl.ErrorEnableTimeout))
}

func TestObserver_ReplyFailed(t *testing.T) {
	o := NewObserver()
	timeout := RepliesTotal.WithLabelValues(ResultTimeout)
	malformed := RepliesTotal.WithLabelValues(ResultMalformed)
	other := RepliesTotal.WithLabelValues(ResultError)
	bt, bm, bo := testutil.ToFloat64(timeout), testutil.ToFloat64(malformed), testutil.ToFloat64(other)

	cmd := extctl.NewCommand(1, extctl.SignalGetState, true)
	o.ReplyFailed(cmd, nil, extctl.ErrTimeout)
	_, err := extctl.DecodeStatus([]byte("x"))
	o.ReplyFailed(cmd, []byte("x"), err)
	o.ReplyFailed(cmd, nil, errors.New("connection refused"))

	assert.Equal(t, bt+1, testutil.ToFloat64(timeout))
	assert.Equal(t, bm+1, testutil.ToFloat64(malformed))
	assert.Equal(t, bo+1, testutil.ToFloat64(other))
}

func TestObserver_HeartbeatChanged(t *testing.T) {
	o := NewObserver()
	o.HeartbeatChanged(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(HeartbeatRunning))
	o.HeartbeatChanged(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(HeartbeatRunning))
}
