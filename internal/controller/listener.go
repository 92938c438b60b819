package controller

import (
	"context"
	log "log/slog"

	"homevox/pkg/protocol"
)

// Supervise keeps lc connected until ctx is done and hands every inbound
// line to handle. Connection loss is followed by the LineConn reconnect
// pause and a redial; nothing short of ctx cancellation ends the loop.
func Supervise(ctx context.Context, name string, lc *protocol.LineConn, handle func(context.Context, string)) {
	stop := context.AfterFunc(ctx, lc.Close)
	defer stop()
	defer lc.Close()

	for ctx.Err() == nil {
		if !lc.Connected() {
			if err := lc.TryReconn(ctx); err != nil {
				return
			}
			log.Info("Connected", "channel", name, "addr", lc.Addr())
		}

		in := lc.Read()
		switch in.Kind {
		case protocol.CONN_CLOSE:
			if ctx.Err() != nil {
				return
			}
			log.Warn("Connection closed, reconnecting", "channel", name, "addr", lc.Addr())
			if lc.Pause(ctx) != nil {
				return
			}

		case protocol.READ_FAILURE:
			log.Error("Failed to read", "channel", name, "err", in.Err)
			if lc.Pause(ctx) != nil {
				return
			}

		case protocol.READ_OK:
			handleSafely(ctx, name, in.Line, handle)
		}
	}
}

func handleSafely(ctx context.Context, name, line string, handle func(context.Context, string)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panicked", "channel", name, "line", line, "panic", r)
		}
	}()
	handle(ctx, line)
}
