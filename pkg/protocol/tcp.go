package protocol

import (
	"bufio"
	"context"
	"errors"
	"io"
	log "log/slog"
	"net"
	"sync"
	"time"
)

// LineConn is a newline-delimited TCP reader that can be redialed after
// the peer goes away.
type LineConn struct {
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader

	addr    string
	reconn  time.Duration
	timeout time.Duration
	dialer  net.Dialer
}

func NewLineConn(addr string, reconn, timeout time.Duration) *LineConn {
	log.Debug("init line protocol", "addr", addr)

	return &LineConn{
		addr:    addr,
		reconn:  reconn,
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

func (lc *LineConn) Addr() string { return lc.addr }

func (lc *LineConn) Dial(ctx context.Context) error {
	conn, err := lc.dialer.DialContext(ctx, "tcp", lc.addr)
	if err != nil {
		return err
	}

	lc.mu.Lock()
	if lc.conn != nil {
		lc.conn.Close()
	}
	lc.conn = conn
	lc.rd = bufio.NewReader(conn)
	lc.mu.Unlock()

	return nil
}

func (lc *LineConn) Connected() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.conn != nil
}

type IncomeKind uint

const (
	CONN_CLOSE IncomeKind = iota
	READ_FAILURE
	READ_OK
)

type Income struct {
	Kind IncomeKind
	Line string
	Err  error
}

func (lc *LineConn) Read() Income {
	lc.mu.Lock()
	rd := lc.rd
	lc.mu.Unlock()

	if rd == nil {
		return Income{Kind: CONN_CLOSE, Err: net.ErrClosed}
	}

	line, err := rd.ReadString('\n')
	if err != nil {
		// a final unterminated line is still delivered, the close is
		// reported on the next read
		if errors.Is(err, io.EOF) && line != "" {
			return Income{Kind: READ_OK, Line: line}
		}
		lc.drop()
		if IsClosed(err) {
			return Income{Kind: CONN_CLOSE, Err: err}
		}
		return Income{Kind: READ_FAILURE, Err: err}
	}

	log.Debug("Read line", "addr", lc.addr, "msg", line)
	return Income{Kind: READ_OK, Line: line}
}

// TryReconn dials until it succeeds or ctx is done, pausing reconn
// between attempts.
func (lc *LineConn) TryReconn(ctx context.Context) error {
	for {
		err := lc.Dial(ctx)
		if err == nil {
			return nil
		}
		log.Debug("Dial failed", "addr", lc.addr, "err", err)

		if err := Sleep(ctx, lc.reconn); err != nil {
			return err
		}
	}
}

// Pause waits out the reconnect delay.
func (lc *LineConn) Pause(ctx context.Context) error {
	return Sleep(ctx, lc.reconn)
}

func (lc *LineConn) Close() {
	lc.drop()
}

func (lc *LineConn) drop() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.conn != nil {
		lc.conn.Close()
		lc.conn = nil
		lc.rd = nil
	}
}

func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
