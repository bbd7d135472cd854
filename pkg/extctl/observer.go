// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

// Observer receives session events. Methods are called from the caller's
// goroutine and from the heartbeat goroutine, so implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	// CommandSent is called after every transmitted command
	CommandSent(cmd Command, raw []byte, heartbeat bool)
	// SendFailed is called when the transport rejected a command
	SendFailed(cmd Command, err error, heartbeat bool)
	// ReplyReceived is called with every decoded reply
	ReplyReceived(r *Report)
	// ReplyFailed is called on timeout or malformed reply; raw is nil on timeout
	ReplyFailed(cmd Command, raw []byte, err error)
	// HeartbeatChanged is called when the heartbeat starts or stops
	HeartbeatChanged(running bool)
}

// BaseObserver implements Observer with no-ops. Embed it to handle a subset
// of events.
type BaseObserver struct{}

func (BaseObserver) CommandSent(Command, []byte, bool)  {}
func (BaseObserver) SendFailed(Command, error, bool)    {}
func (BaseObserver) ReplyReceived(*Report)              {}
func (BaseObserver) ReplyFailed(Command, []byte, error) {}
func (BaseObserver) HeartbeatChanged(bool)              {}

type observers []Observer

func (o observers) CommandSent(cmd Command, raw []byte, heartbeat bool) {
	for _, obs := range o {
		obs.CommandSent(cmd, raw, heartbeat)
	}
}

func (o observers) SendFailed(cmd Command, err error, heartbeat bool) {
	for _, obs := range o {
		obs.SendFailed(cmd, err, heartbeat)
	}
}

func (o observers) ReplyReceived(r *Report) {
	for _, obs := range o {
		obs.ReplyReceived(r)
	}
}

func (o observers) ReplyFailed(cmd Command, raw []byte, err error) {
	for _, obs := range o {
		obs.ReplyFailed(cmd, raw, err)
	}
}

func (o observers) HeartbeatChanged(running bool) {
	for _, obs := range o {
		obs.HeartbeatChanged(running)
	}
}
