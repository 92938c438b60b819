// Package ipc is the push-to-talk trigger channel: a loopback TCP
// listener that takes one short text command per connection.
package ipc

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"strings"
	"time"
)

const (
	StartRecording = "START_RECORDING"
	StopRecording  = "STOP_RECORDING"
)

const (
	maxRequest  = 1024
	readTimeout = 5 * time.Second
)

// Listen binds the trigger port. Only loopback addresses should be used.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts connections one at a time and calls handler with the
// trimmed request before closing the connection. It returns when ctx is
// done.
func Serve(ctx context.Context, ln net.Listener, handler func(ctx context.Context, cmd string)) {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	log.Info("Trigger server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Trigger accept failed", "err", err)
			continue
		}
		handleConn(ctx, conn, handler)
	}
}

func handleConn(ctx context.Context, conn net.Conn, handler func(context.Context, string)) {
	defer conn.Close()
	defer func() {
		if p := recover(); p != nil {
			log.Error("Trigger handler panicked", "panic", p)
		}
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	buf := make([]byte, maxRequest)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil {
			log.Debug("Empty trigger request", "err", err)
		}
		return
	}

	cmd := strings.TrimSpace(string(buf[:n]))
	log.Debug("Trigger received", "cmd", cmd)
	handler(ctx, cmd)
}

// SendCommand delivers one trigger command to the server at addr.
func SendCommand(addr, cmd string) error {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write([]byte(cmd + "\n"))
	return err
}
