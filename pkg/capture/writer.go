// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

// Writer appends records to a CBOR sequence. It implements extctl.Observer;
// errors are sticky and reported by Err and Close.
type Writer struct {
	extctl.BaseObserver

	mu         sync.Mutex
	enc        *cbor.Encoder
	closer     io.Closer
	heartbeats bool
	count      int
	err        error
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithHeartbeats also records every heartbeat packet
func WithHeartbeats() WriterOption {
	return func(w *Writer) { w.heartbeats = true }
}

// NewWriter writes records to out
func NewWriter(out io.Writer, opts ...WriterOption) (*Writer, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}
	w := &Writer{enc: em.NewEncoder(out)}
	if c, ok := out.(io.Closer); ok {
		w.closer = c
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Create opens path for appending and returns a Writer on it
func Create(path string, opts ...WriterOption) (*Writer, error) {
	// #nosec G304 -- capture paths are provided by the operator
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	w, err := NewWriter(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends one record
func (w *Writer) Write(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(r); err != nil {
		w.err = fmt.Errorf("capture write failed: %w", err)
		return w.err
	}
	w.count++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Err returns the first write error
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying file, if any
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var closeErr error
	if w.closer != nil {
		closeErr = w.closer.Close()
		w.closer = nil
	}
	return errors.Join(w.err, closeErr)
}

func now() int64 {
	return time.Now().UnixNano()
}

// CommandSent implements extctl.Observer
func (w *Writer) CommandSent(cmd extctl.Command, raw []byte, heartbeat bool) {
	if heartbeat && !w.heartbeats {
		return
	}
	w.Write(&Record{
		Kind:      KindCommand,
		Time:      now(),
		Sequence:  cmd.Sequence,
		Signal:    cmd.Signal.String(),
		Value:     cmd.Value,
		Heartbeat: heartbeat,
		Raw:       raw,
	})
}

// SendFailed implements extctl.Observer
func (w *Writer) SendFailed(cmd extctl.Command, err error, heartbeat bool) {
	if heartbeat && !w.heartbeats {
		return
	}
	w.Write(&Record{
		Kind:      KindSendError,
		Time:      now(),
		Sequence:  cmd.Sequence,
		Signal:    cmd.Signal.String(),
		Value:     cmd.Value,
		Heartbeat: heartbeat,
		Error:     err.Error(),
	})
}

// ReplyReceived implements extctl.Observer
func (w *Writer) ReplyReceived(r *extctl.Report) {
	raw := r.Raw
	if raw == nil {
		raw = r.Status.Encode()
	}
	w.Write(&Record{
		Kind:     KindReply,
		Time:     now(),
		Sequence: r.Command.Sequence,
		Signal:   r.Command.Signal.String(),
		Value:    r.Command.Value,
		Raw:      raw,
		RTT:      int64(r.RTT),
	})
}

// ReplyFailed implements extctl.Observer
func (w *Writer) ReplyFailed(cmd extctl.Command, raw []byte, err error) {
	kind := KindMalformed
	if errors.Is(err, extctl.ErrTimeout) {
		kind = KindTimeout
	}
	w.Write(&Record{
		Kind:     kind,
		Time:     now(),
		Sequence: cmd.Sequence,
		Signal:   cmd.Signal.String(),
		Value:    cmd.Value,
		Raw:      raw,
		Error:    err.Error(),
	})
}

// HeartbeatChanged implements extctl.Observer
func (w *Writer) HeartbeatChanged(running bool) {
	w.Write(&Record{
		Kind:  KindHeartbeat,
		Time:  now(),
		Value: running,
	})
}
