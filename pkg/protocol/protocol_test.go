package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeFrame(t *testing.T) {
	b, err := Unlock.Frame()
	require.NoError(t, err)
	assert.Equal(t, "UNLOCK\n", string(b))

	_, err = Code(0).Frame()
	assert.Error(t, err)
	assert.False(t, Code(42).Valid())
}

func TestParseCode(t *testing.T) {
	for c, name := range codeNames {
		got, err := ParseCode(name)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCode("LED_BLINK")
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		kind    EventKind
		temp    float64
		wantErr bool
	}{
		{name: "temperature", line: "CURRENT_TEMP:24.5\n", kind: EV_TEMPERATURE, temp: 24.5},
		{name: "negative temperature", line: "CURRENT_TEMP:-3", kind: EV_TEMPERATURE, temp: -3},
		{name: "malformed temperature", line: "CURRENT_TEMP:hot", wantErr: true},
		{name: "missing temperature", line: "CURRENT_TEMP:", wantErr: true},
		{name: "face unlock", line: "REQ_FACE_UNLOCK\r\n", kind: EV_FACE_UNLOCK},
		{name: "register", line: "  REGISTER_FACE ", kind: EV_REGISTER_FACE},
		{name: "echo", line: "LED_ON", kind: EV_ECHO},
		{name: "unknown", line: "HELLO", kind: EV_UNKNOWN},
		{name: "empty", line: "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.temp, ev.Temp)
		})
	}
}

func TestParseDoor(t *testing.T) {
	assert.Equal(t, EV_DOOR_UNLOCKED, ParseDoor("DOOR_UNLOCKED\n").Kind)
	assert.Equal(t, EV_DOOR_UNLOCKED, ParseDoor("UNLOCKED").Kind)
	assert.Equal(t, EV_UNKNOWN, ParseDoor("DOOR_LOCKED").Kind)
}

func TestLineConnReadsLinesAndReportsClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Write([]byte("CURRENT_TEMP:20\nREQ_FACE_UNLOCK"))
		c.Close()
	}()

	lc := NewLineConn(ln.Addr().String(), 10*time.Millisecond, time.Second)
	require.NoError(t, lc.Dial(context.Background()))
	assert.True(t, lc.Connected())

	in := lc.Read()
	require.Equal(t, READ_OK, in.Kind)
	assert.Equal(t, "CURRENT_TEMP:20\n", in.Line)

	in = lc.Read()
	require.Equal(t, READ_OK, in.Kind)
	assert.Equal(t, "REQ_FACE_UNLOCK", in.Line)

	in = lc.Read()
	assert.Equal(t, CONN_CLOSE, in.Kind)
	assert.False(t, lc.Connected())
}

func TestTryReconnStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	lc := NewLineConn(addr, 5*time.Millisecond, 100*time.Millisecond)
	err = lc.TryReconn(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, lc.Connected())
}
