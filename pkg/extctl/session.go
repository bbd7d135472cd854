// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lbrlab/sunlink/internal/log"
)

// Config holds the connection parameters of a session
type Config struct {
	Host string // controller address, DefaultControllerHost if empty
	Port int    // FixedPort if zero

	// Seed is the initial packet counter. The first command carries Seed+1.
	Seed uint64

	// EnableSupported selects the protocol variant in which the controller
	// evaluates App_Enable. Required for AppStop and AppRestart.
	EnableSupported bool

	// HeartbeatRate caps App_Enable refreshes per second; 0 is unlimited
	HeartbeatRate float64

	// Verbose logs every datagram at info level instead of debug
	Verbose bool
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithObserver registers an observer for session events
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// WithTransport uses t instead of dialing the controller
func WithTransport(t Transport) Option {
	return func(s *Session) { s.transport = t }
}

// Session is one client of the controller's external control channel.
// Caller operations are serialised; the heartbeat runs on its own goroutine
// and shares the packet counter and the socket with them.
type Session struct {
	id        string
	cfg       Config
	transport Transport
	logger    zerolog.Logger
	observers observers
	heartbeat *Heartbeat

	// sendMu guards seq and keeps wire order equal to sequence order
	sendMu sync.Mutex
	seq    uint64

	// opMu serialises caller operations; only they read the socket
	opMu   sync.Mutex
	closed atomic.Bool
}

// New creates a session and opens its transport
func New(cfg Config, opts ...Option) (*Session, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultControllerHost
	}
	if cfg.Port == 0 {
		cfg.Port = FixedPort
	}
	if cfg.HeartbeatRate < 0 {
		return nil, fmt.Errorf("invalid heartbeat rate %.1f", cfg.HeartbeatRate)
	}

	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		seq:    cfg.Seed,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.transport == nil {
		t, err := DialUDP(cfg.Host, cfg.Port)
		if err != nil {
			return nil, err
		}
		s.transport = t
	}

	s.logger = s.logger.With().
		Str(log.FieldSessionID, s.id).
		Str(log.FieldController, s.transport.String()).
		Logger()

	s.heartbeat = NewHeartbeat(s.sendHeartbeat, rate.Limit(cfg.HeartbeatRate), s.logger)
	s.heartbeat.notify = func(running bool) {
		s.logger.Info().Bool("running", running).Msg("App_Enable heartbeat")
		s.observers.HeartbeatChanged(running)
	}

	return s, nil
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// Config returns the session configuration
func (s *Session) Config() Config {
	return s.cfg
}

// Transport returns the underlying transport
func (s *Session) Transport() Transport {
	return s.transport
}

// EnableSupported reports whether the App_Enable protocol variant is in use
func (s *Session) EnableSupported() bool {
	return s.cfg.EnableSupported
}

// Sequence returns the counter of the last packet sent
func (s *Session) Sequence() uint64 {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.seq
}

// Resync sets the packet counter, typically to the controller's seq_recv
// after it was restarted. The next command carries seq+1. It is never
// called automatically.
func (s *Session) Resync(seq uint64) {
	s.sendMu.Lock()
	prev := s.seq
	s.seq = seq
	s.sendMu.Unlock()

	s.logger.Info().Uint64("from", prev).Uint64("to", seq).Msg("packet counter resynchronised")
}

// HeartbeatRunning reports whether the App_Enable heartbeat is active
func (s *Session) HeartbeatRunning() bool {
	return s.heartbeat.Running()
}

// Heartbeat returns the session's heartbeat controller
func (s *Session) Heartbeat() *Heartbeat {
	return s.heartbeat
}

// GetState requests the controller state
func (s *Session) GetState() (*Report, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.transact(SignalGetState, true)
}

// AppStart starts the controller's default application. With App_Enable
// support the heartbeat is started first so the controller sees the enable
// signal around the start command.
func (s *Session) AppStart() (*Report, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.appStart()
}

// AppStop stops the application by dropping App_Enable. Without App_Enable
// support nothing is sent and ErrUnsupportedOperation is returned.
func (s *Session) AppStop() (*Report, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.appStop()
}

// AppEnable sends App_Enable(true). The reply is read and decoded only when
// report is set.
func (s *Session) AppEnable(report bool) (*Report, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !report {
		if err := s.checkOpen(); err != nil {
			return nil, err
		}
		_, err := s.send(SignalAppEnable, true, false)
		return nil, err
	}
	return s.transact(SignalAppEnable, true)
}

// AppRestart stops then starts the application. It is not atomic: if the
// stop fails the start is not attempted.
func (s *Session) AppRestart() (*Report, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if _, err := s.appStop(); err != nil {
		return nil, err
	}
	return s.appStart()
}

// Close stops the heartbeat and closes the transport
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.heartbeat.Stop()
	return s.transport.Close()
}

func (s *Session) appStart() (*Report, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.cfg.EnableSupported {
		s.heartbeat.Start()
	}
	return s.transact(SignalAppStart, true)
}

func (s *Session) appStop() (*Report, error) {
	if !s.cfg.EnableSupported {
		s.logger.Warn().Msg("cannot stop the application over UDP without App_Enable support, use the control pendant")
		return nil, ErrUnsupportedOperation
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	// The loop must be gone before App_Enable(false) goes out, otherwise a
	// late heartbeat would re-enable the application.
	s.heartbeat.Stop()
	return s.transact(SignalAppEnable, false)
}

func (s *Session) checkOpen() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

// send encodes and transmits one command. The counter advances even if the
// transport rejects the packet: sequence numbers count send attempts.
func (s *Session) send(signal Signal, value bool, heartbeat bool) (Command, error) {
	s.sendMu.Lock()
	s.seq++
	cmd := NewCommand(s.seq, signal, value)
	raw := cmd.Encode()
	err := s.transport.Send(raw)
	s.sendMu.Unlock()

	if err != nil {
		s.observers.SendFailed(cmd, err, heartbeat)
		return cmd, err
	}

	if !heartbeat {
		s.logDatagram("sent", raw)
	}
	s.observers.CommandSent(cmd, raw, heartbeat)
	return cmd, nil
}

func (s *Session) sendHeartbeat() error {
	_, err := s.send(SignalAppEnable, true, true)
	return err
}

// transact sends one command and performs one bounded receive
func (s *Session) transact(signal Signal, value bool) (*Report, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if n := s.transport.Drain(); n > 0 {
		s.logger.Debug().Int("dropped", n).Msg("discarded stale replies")
	}

	start := time.Now()
	cmd, err := s.send(signal, value, false)
	if err != nil {
		return nil, fmt.Errorf("%s (packet %d): %w", cmd.Signal, cmd.Sequence, err)
	}

	raw, err := s.transport.Receive(ReceiveTimeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			s.logger.Warn().
				Uint64(log.FieldSequence, cmd.Sequence).
				Str(log.FieldSignal, cmd.Signal.String()).
				Msg("REQUEST TIMED OUT, check the firewall and the client IP configured on the controller")
		}
		s.observers.ReplyFailed(cmd, nil, err)
		return nil, fmt.Errorf("%s (packet %d): %w", cmd.Signal, cmd.Sequence, err)
	}
	rtt := time.Since(start)
	s.logDatagram("received", raw)

	status, err := DecodeStatus(raw)
	if err != nil {
		s.logger.Error().Err(err).Msg("protocol violation")
		s.observers.ReplyFailed(cmd, raw, err)
		return nil, fmt.Errorf("%s (packet %d): %w", cmd.Signal, cmd.Sequence, err)
	}

	report := NewReport(cmd, status, s.Sequence())
	report.Raw = raw
	report.RTT = rtt
	s.logReport(report)
	s.observers.ReplyReceived(report)

	return report, nil
}

func (s *Session) logDatagram(direction string, raw []byte) {
	level := zerolog.DebugLevel
	if s.cfg.Verbose {
		level = zerolog.InfoLevel
	}
	s.logger.WithLevel(level).Str("direction", direction).Str("datagram", string(raw)).Msg("datagram")
}

func (s *Session) logReport(r *Report) {
	st := r.Status
	for _, a := range r.Anomalies {
		event := s.logger.Warn()
		if a.Type == AnomalyFault {
			event = s.logger.Error().Int(log.FieldErrorID, int(st.ErrorID))
		}
		event.Str("header", st.Header()).Str("anomaly", a.Type.String()).Msg(a.Message)
	}
	s.logger.Debug().
		Str("header", st.Header()).
		Str(log.FieldAppState, string(st.AppState)).
		Bool("app_start", st.AppStartEcho).
		Bool("app_enable", st.AppEnableEcho).
		Dur("rtt", r.RTT).
		Msg("status")
}
