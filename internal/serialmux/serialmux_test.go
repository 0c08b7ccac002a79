package serialmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSerialPort implements SerialPorter for testing SerialMux operations
type TestSerialPort struct {
	readData    []byte
	readIndex   int
	writtenData bytes.Buffer
	writeErr    error
	closeErr    error
	closed      bool
	mu          sync.Mutex
}

func NewTestSerialPort(data string) *TestSerialPort {
	return &TestSerialPort{
		readData: []byte(data),
	}
}

func (p *TestSerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	if p.readIndex >= len(p.readData) {
		return 0, io.EOF
	}
	n := copy(buf, p.readData[p.readIndex:])
	p.readIndex += n
	return n, nil
}

func (p *TestSerialPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.writtenData.Write(data)
}

func (p *TestSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *TestSerialPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *TestSerialPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writtenData.String()
}

var _ SerialMuxInterface = (*SerialMux[*TestSerialPort])(nil)

func TestSerialMux_SubscribeUnique(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(""))

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.NotNil(t, ch1)
	assert.NotNil(t, ch2)
	assert.Equal(t, DefaultSubscriberBuffer, cap(ch1))
}

func TestSerialMux_Unsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(""))
	id, ch := mux.Subscribe()

	mux.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after Unsubscribe")

	// Unknown IDs are a no-op.
	mux.Unsubscribe("non-existent-id")
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("STATUS"))
	require.NoError(t, mux.SendCommand("ZERO\n"))
	assert.Equal(t, "STATUS\nZERO\n", port.WrittenData())
}

func TestSerialMux_SendCommand_WriteError(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)
	port.SetWriteError(errors.New("write failed"))

	assert.Error(t, mux.SendCommand("STATUS"))
}

func TestSerialMux_Initialize(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)
	mux.SetStreamRate(500)

	require.NoError(t, mux.Initialize())

	lines := strings.Split(strings.TrimSuffix(port.WrittenData(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, CmdStop, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "SYNC="), lines[1])
	assert.Equal(t, []string{CmdFormatCSV, CmdUnitsRadians, "RATE=500", CmdStart}, lines[2:])
	for _, l := range lines {
		assert.True(t, IsAllowedCommand(l), "Initialize sent disallowed command %q", l)
	}
}

func TestSerialMux_Initialize_WriteError(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)
	port.SetWriteError(errors.New("write failed"))

	assert.Error(t, mux.Initialize())
}

func TestSerialMux_MonitorFansOutLines(t *testing.T) {
	port := NewTestSerialPort("1,0,0,0,0,0,0,0\n# rate=1000\n2,0,0,0,0,0,0,0\n")
	mux := NewSerialMux(port)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	// The port returns EOF after its data, which ends Monitor cleanly.
	require.NoError(t, mux.Monitor(context.Background()))

	for _, ch := range []chan string{ch1, ch2} {
		var got []string
		for len(ch) > 0 {
			got = append(got, <-ch)
		}
		assert.Equal(t, []string{"1,0,0,0,0,0,0,0", "# rate=1000", "2,0,0,0,0,0,0,0"}, got)
	}
}

func TestSerialMux_MonitorStripsCRLF(t *testing.T) {
	port := NewTestSerialPort("1,0,0,0,0,0,0,0\r\n\r\n\n2,0,0,0,0,0,0,0\r\n3,0,0,0,0,0,0,0\r\n")
	mux := NewSerialMux(port)
	mux.bufferSize = 2
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))

	assert.Equal(t, "1,0,0,0,0,0,0,0", <-ch)
	assert.Equal(t, "2,0,0,0,0,0,0,0", <-ch)
	read, dropped := mux.LineCounts()
	assert.Equal(t, uint64(3), read, "blank lines are not counted")
	assert.Equal(t, uint64(1), dropped, "third line overflows a buffer of two")
}

func TestSerialMux_MonitorCancelled(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	_ = port.Close()
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)
	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	require.NoError(t, mux.Close())

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, port.closed)
}

func TestIsAllowedCommand(t *testing.T) {
	tests := []struct {
		cmd  string
		want bool
	}{
		{"STATUS", true},
		{"START", true},
		{"RATE=1000", true},
		{"RATE=0", false},
		{"RATE=20000", false},
		{"RATE=fast", false},
		{"SYNC=1700000000000000000", true},
		{"SYNC=now", false},
		{"REBOOT", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowedCommand(tt.cmd))
		})
	}
}

func TestNewSerialMuxFromFactory(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)

	mux, err := NewSerialMuxFromFactory(factory, "/dev/ttyACM0", PortOptions{})
	require.NoError(t, err)
	require.NotNil(t, mux)

	call := factory.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyACM0", call.Path)

	factory.Error = errors.New("no such device")
	_, err = NewSerialMuxFromFactory(factory, "/dev/missing", PortOptions{})
	assert.Error(t, err)
	assert.Len(t, factory.OpenCalls, 2)

	factory.Reset()
	assert.Nil(t, factory.LastCall())
	assert.Nil(t, factory.Error)
}

func TestSerialMux_InitializeCommandSequence(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteLatency = time.Millisecond
	mux := NewSerialMux(port)
	mux.SetStreamRate(250)

	require.NoError(t, mux.Initialize())
	assert.Equal(t, 6, port.WriteCalls)

	written := string(port.GetWrittenData())
	assert.True(t, strings.HasPrefix(written, CmdStop+"\nSYNC="), written)
	assert.True(t, strings.HasSuffix(written, strings.Join([]string{CmdFormatCSV, CmdUnitsRadians, "RATE=250", CmdStart}, "\n")+"\n"), written)

	port.Reset()
	assert.Empty(t, port.GetWrittenData())
	assert.Zero(t, port.WriteCalls)

	require.NoError(t, mux.SendCommand("STATUS"))
	assert.Equal(t, "STATUS\n", string(port.GetWrittenData()))
}

func TestSerialMux_MonitorQueuedLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddLines("1,0,0,0,0,0,0,0", "# rate=250")
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	// Non-blocking reads hit EOF once the queued lines are consumed.
	require.NoError(t, mux.Monitor(context.Background()))
	assert.Equal(t, "1,0,0,0,0,0,0,0", <-ch)
	assert.Equal(t, "# rate=250", <-ch)
	read, dropped := mux.LineCounts()
	assert.Equal(t, uint64(2), read)
	assert.Zero(t, dropped)
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	errUnplugged := errors.New("device unplugged")
	port.ReadError = errUnplugged
	mux := NewSerialMux(port)

	assert.ErrorIs(t, mux.Monitor(context.Background()), errUnplugged)
	assert.Equal(t, 1, port.ReadCalls)
}

func TestSerialMux_CloseError(t *testing.T) {
	port := NewTestableSerialPort()
	errBusy := errors.New("port busy")
	port.CloseError = errBusy
	mux := NewSerialMux(port)

	assert.ErrorIs(t, mux.Close(), errBusy)
	assert.True(t, port.Closed)
}
