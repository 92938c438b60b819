package controller

import (
	"context"
	log "log/slog"
	"net"
	"time"

	"homevox/internal/state"
	"homevox/pkg/protocol"
)

type SenderConfig struct {
	Addr        string
	Attempts    int
	Pause       time.Duration
	DialTimeout time.Duration
	LockHold    time.Duration
}

func DefaultSenderConfig(addr string) SenderConfig {
	return SenderConfig{
		Addr:        addr,
		Attempts:    3,
		Pause:       500 * time.Millisecond,
		DialTimeout: 2 * time.Second,
		LockHold:    1500 * time.Millisecond,
	}
}

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Sender delivers control codes on the command channel, one connection
// per code.
type Sender struct {
	cfg  SenderConfig
	st   *state.Store
	dial DialFunc
}

func NewSender(cfg SenderConfig, st *state.Store) *Sender {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Sender{cfg: cfg, st: st, dial: d.DialContext}
}

// WithDialer swaps the transport, used by tests.
func (s *Sender) WithDialer(dial DialFunc) *Sender {
	s.dial = dial
	return s
}

// Send reports whether code reached the controller within the configured
// attempts. It never returns an error.
func (s *Sender) Send(ctx context.Context, code protocol.Code) bool {
	s.st.LockCommands(s.cfg.LockHold)

	frame, err := code.Frame()
	if err != nil {
		log.Error("Refusing to send", "code", code, "err", err)
		return false
	}

	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		err := s.sendOnce(ctx, frame)
		if err == nil {
			log.Info("Sent", "code", code)
			return true
		}
		log.Debug("Send attempt failed", "code", code, "attempt", attempt, "err", err)

		if attempt < s.cfg.Attempts {
			if protocol.Sleep(ctx, s.cfg.Pause) != nil {
				break
			}
		}
	}

	log.Warn("Failed to send", "code", code, "addr", s.cfg.Addr)
	return false
}

func (s *Sender) sendOnce(ctx context.Context, frame []byte) error {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	conn, err := s.dial(dctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if s.cfg.DialTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.DialTimeout))
	}
	_, err = conn.Write(frame)
	return err
}
