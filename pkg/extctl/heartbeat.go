// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Heartbeat keeps the controller's application unpaused by re-sending
// App_Enable(true). With App_Enable evaluated, the controller pauses the
// application if it does not see the signal within 100ms.
//
// States: Idle -> Start -> Running -> Stop -> Idle. Start while Running and
// Stop while Idle are no-ops.
type Heartbeat struct {
	mu      sync.Mutex
	send    func() error
	limiter *rate.Limiter
	logger  zerolog.Logger
	notify  func(running bool)

	cancel context.CancelFunc
	done   chan struct{}

	sends    atomic.Uint64
	failures atomic.Uint64
}

// NewHeartbeat creates an idle heartbeat around send. A limit of zero or
// rate.Inf sends as fast as the transport accepts packets.
func NewHeartbeat(send func() error, limit rate.Limit, logger zerolog.Logger) *Heartbeat {
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Heartbeat{
		send:    send,
		limiter: rate.NewLimiter(limit, 1),
		logger: logger.Sample(&zerolog.BurstSampler{
			Burst:  1,
			Period: time.Second,
		}),
	}
}

// Start launches the heartbeat loop. Returns false if it was already running.
func (h *Heartbeat) Start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(ctx, h.done)

	if h.notify != nil {
		h.notify(true)
	}
	return true
}

// Stop signals the loop and waits for it to exit. No heartbeat packet is sent
// after Stop returns. Returns false if the heartbeat was idle.
func (h *Heartbeat) Stop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done == nil {
		return false
	}

	h.cancel()
	<-h.done
	h.cancel = nil
	h.done = nil

	if h.notify != nil {
		h.notify(false)
	}
	return true
}

// Running reports whether the loop is active
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done != nil
}

// Sends returns the number of heartbeat packets sent successfully
func (h *Heartbeat) Sends() uint64 {
	return h.sends.Load()
}

// Failures returns the number of heartbeat sends the transport rejected
func (h *Heartbeat) Failures() uint64 {
	return h.failures.Load()
}

func (h *Heartbeat) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := h.limiter.Wait(ctx); err != nil {
			return
		}
		// Stop may have landed while waiting on the limiter
		if ctx.Err() != nil {
			return
		}

		if err := h.send(); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return
			}
			h.failures.Add(1)
			h.logger.Warn().Err(err).Msg("heartbeat send failed")
			continue
		}
		h.sends.Add(1)
	}
}
