// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks transaction counters and rates. It implements Observer.
type Statistics struct {
	BaseObserver

	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	CommandsSent     uint64
	HeartbeatsSent   uint64
	SendErrors       uint64
	Replies          uint64
	CleanReplies     uint64
	Timeouts         uint64
	MalformedReplies uint64
	Faults           uint64
	SeqMismatches    uint64
	ModeWarnings     uint64

	LastFault ErrorCode
	LastState AppState
	LastRTT   time.Duration

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// CommandSent implements Observer
func (s *Statistics) CommandSent(_ Command, _ []byte, heartbeat bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if heartbeat {
		s.HeartbeatsSent++
	} else {
		s.CommandsSent++
	}
	s.LastUpdateTime = time.Now()
}

// SendFailed implements Observer
func (s *Statistics) SendFailed(Command, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendErrors++
}

// ReplyReceived implements Observer
func (s *Statistics) ReplyReceived(r *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Replies++
	s.LastState = r.Status.AppState
	s.LastRTT = r.RTT
	if len(r.Anomalies) == 0 {
		s.CleanReplies++
	}
	for _, a := range r.Anomalies {
		switch a.Type {
		case AnomalySequenceMismatch:
			s.SeqMismatches++
		case AnomalyFault:
			s.Faults++
			s.LastFault = r.Fault
		case AnomalyModeNotEngaged, AnomalyModeNotArmed:
			s.ModeWarnings++
		}
	}
	s.LastUpdateTime = time.Now()
}

// ReplyFailed implements Observer
func (s *Statistics) ReplyFailed(_ Command, _ []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, ErrTimeout) {
		s.Timeouts++
	} else if errors.Is(err, ErrMalformedReply) {
		s.MalformedReplies++
	}
	s.LastUpdateTime = time.Now()
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return Statistics{
		StartTime:        s.StartTime,
		LastUpdateTime:   s.LastUpdateTime,
		CommandsSent:     s.CommandsSent,
		HeartbeatsSent:   s.HeartbeatsSent,
		SendErrors:       s.SendErrors,
		Replies:          s.Replies,
		CleanReplies:     s.CleanReplies,
		Timeouts:         s.Timeouts,
		MalformedReplies: s.MalformedReplies,
		Faults:           s.Faults,
		SeqMismatches:    s.SeqMismatches,
		ModeWarnings:     s.ModeWarnings,
		LastFault:        s.LastFault,
		LastState:        s.LastState,
		LastRTT:          s.LastRTT,
		PacketRate:       s.PacketRate,
		ErrorRate:        s.ErrorRate,
	}
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.CommandsSent+s.HeartbeatsSent) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.SendErrors + s.Timeouts + s.MalformedReplies + s.Faults
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var replyPercent float64
	if snap.CommandsSent > 0 {
		replyPercent = float64(snap.Replies) * 100.0 / float64(snap.CommandsSent)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Commands Sent:   %8d\n", snap.CommandsSent)
	if snap.HeartbeatsSent > 0 {
		result += fmt.Sprintf("Heartbeats Sent: %8d\n", snap.HeartbeatsSent)
	}
	result += fmt.Sprintf("Replies:         %8d (%.1f%%)\n", snap.Replies, replyPercent)
	result += fmt.Sprintf("Clean Replies:   %8d\n", snap.CleanReplies)

	if snap.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", snap.SendErrors)
	}
	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", snap.Timeouts)
	}
	if snap.MalformedReplies > 0 {
		result += fmt.Sprintf("Malformed:       %8d\n", snap.MalformedReplies)
	}
	if snap.Faults > 0 {
		result += fmt.Sprintf("Faults:          %8d (last %s)\n", snap.Faults, snap.LastFault)
	}
	if snap.SeqMismatches > 0 {
		result += fmt.Sprintf("Seq Mismatches:  %8d\n", snap.SeqMismatches)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", snap.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.CommandsSent = 0
	s.HeartbeatsSent = 0
	s.SendErrors = 0
	s.Replies = 0
	s.CleanReplies = 0
	s.Timeouts = 0
	s.MalformedReplies = 0
	s.Faults = 0
	s.SeqMismatches = 0
	s.ModeWarnings = 0
	s.LastFault = ErrorNone
	s.LastState = ""
	s.LastRTT = 0
	s.PacketRate = 0
	s.ErrorRate = 0
}
