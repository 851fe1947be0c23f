package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/multichat/internal/protocol"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type received struct {
	session *Session
	event   protocol.Event
}

func recorder() (Handler, chan received) {
	ch := make(chan received, 64)
	return HandlerFunc(func(s *Session, evt protocol.Event) {
		ch <- received{session: s, event: evt}
	}), ch
}

func newPipeSession(t *testing.T, opts Options) (*Session, net.Conn, chan received) {
	t.Helper()
	local, remote := net.Pipe()
	handler, events := recorder()
	s := New(local, "pipe", handler, opts, logs.GetLoggerFromLevel(slog.LevelDebug))
	t.Cleanup(func() {
		_ = s.Close()
		_ = remote.Close()
	})
	return s, remote, events
}

func runAsync(s *Session, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func nextEvent(t *testing.T, events <-chan received) protocol.Event {
	t.Helper()
	select {
	case r := <-events:
		return r.event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return protocol.Event{}
	}
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestSession_RunReassemblesFragmentedFrames(t *testing.T) {
	req := require.New(t)
	s, remote, events := newPipeSession(t, Options{BufferSize: 4})
	done := runAsync(s, context.Background())

	// Given two frames written in awkward pieces
	stream := append(protocol.Encode(protocol.Connect("alice")), protocol.Encode(protocol.Message("alice", "hi"))...)
	for _, piece := range [][]byte{stream[:3], stream[3:30], stream[30:31], stream[31:]} {
		_, err := remote.Write(piece)
		req.NoError(err)
	}

	// Then both events arrive in order
	req.Equal(protocol.Connect("alice"), nextEvent(t, events))
	req.Equal(protocol.Message("alice", "hi"), nextEvent(t, events))

	// When the peer closes the stream, Run ends cleanly
	req.NoError(remote.Close())
	req.NoError(waitRun(t, done))
	req.True(s.Closed())
}

func TestSession_SendWritesFrame(t *testing.T) {
	req := require.New(t)
	s, remote, _ := newPipeSession(t, Options{})

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(remote).ReadString('\n')
		lines <- line
	}()

	req.NoError(s.Send(protocol.Message("bob", "a|b")))
	req.Equal(string(protocol.Encode(protocol.Message("bob", "a|b"))), <-lines)
}

func TestSession_DeliverIsDrainedByWritePump(t *testing.T) {
	req := require.New(t)
	s, remote, _ := newPipeSession(t, Options{})
	done := runAsync(s, context.Background())

	frame := protocol.Encode(protocol.Connect("carol"))
	req.NoError(s.Deliver(frame))

	line, err := bufio.NewReader(remote).ReadString('\n')
	req.NoError(err)
	req.Equal(string(frame), line)

	req.NoError(s.Close())
	req.NoError(waitRun(t, done))
}

func TestSession_CloseFlushesQueuedFrames(t *testing.T) {
	req := require.New(t)
	s, remote, _ := newPipeSession(t, Options{})
	done := runAsync(s, context.Background())

	// Given a frame queued right before the session is closed
	frame := protocol.Encode(protocol.Disconnect("carol"))
	req.NoError(s.Deliver(frame))
	req.NoError(s.Close())

	// Then the peer still reads it before the stream ends
	reader := bufio.NewReader(remote)
	line, err := reader.ReadString('\n')
	req.NoError(err)
	req.Equal(string(frame), line)
	_, err = reader.ReadString('\n')
	req.ErrorIs(err, io.EOF)
	req.NoError(waitRun(t, done))
}

func TestSession_CloseBeforeRunFlushesQueuedFrames(t *testing.T) {
	req := require.New(t)
	s, remote, _ := newPipeSession(t, Options{})

	// Given a frame queued and the session closed before Run ever starts
	frame := protocol.Encode(protocol.Message("hub", "bye"))
	req.NoError(s.Deliver(frame))
	req.NoError(s.Close())

	// Then the frame is still written before the stream ends
	reader := bufio.NewReader(remote)
	line, err := reader.ReadString('\n')
	req.NoError(err)
	req.Equal(string(frame), line)
	_, err = reader.ReadString('\n')
	req.ErrorIs(err, io.EOF)

	// And a late Run returns at once
	req.NoError(waitRun(t, runAsync(s, context.Background())))
}

func TestSession_DeliverQueueFull(t *testing.T) {
	req := require.New(t)
	s, _, _ := newPipeSession(t, Options{SendQueueSize: 1})

	// Given nobody reads, the pump holds at most one frame in a blocked
	// write and the queue holds one more
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = s.Deliver([]byte("frame\n"))
	}
	req.ErrorIs(err, ErrSendQueueFull)
}

// stallingConn blocks every Write until its deadline is moved while the
// write is in progress.
type stallingConn struct {
	mu       sync.Mutex
	writing  bool
	wake     chan struct{}
	released chan struct{}
	once     sync.Once
}

func newStallingConn() *stallingConn {
	return &stallingConn{wake: make(chan struct{}), released: make(chan struct{})}
}

func (c *stallingConn) Read([]byte) (int, error) {
	<-c.released
	return 0, io.EOF
}

func (c *stallingConn) Write([]byte) (int, error) {
	c.mu.Lock()
	c.writing = true
	c.mu.Unlock()
	<-c.wake
	return 0, os.ErrDeadlineExceeded
}

func (c *stallingConn) SetWriteDeadline(time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writing {
		select {
		case <-c.wake:
		default:
			close(c.wake)
		}
	}
	return nil
}

func (c *stallingConn) Close() error {
	c.once.Do(func() { close(c.released) })
	return nil
}

func TestSession_CloseBoundsBlockedWrite(t *testing.T) {
	req := require.New(t)
	conn := newStallingConn()
	handler, _ := recorder()
	s := New(conn, "stalled", handler, Options{WriteTimeout: time.Hour}, logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given the pump is stuck writing to a transport that is not a net.Conn
	req.NoError(s.Deliver([]byte("stuck\n")))
	req.Eventually(func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.writing
	}, time.Second, 5*time.Millisecond)

	// When the session is closed
	req.NoError(s.Close())

	// Then the write deadline unblocks the pump and the transport is released
	select {
	case <-conn.released:
	case <-time.After(2 * time.Second):
		req.Fail("transport was not released")
	}
}

func TestSession_WritesFailAfterClose(t *testing.T) {
	req := require.New(t)
	s, _, _ := newPipeSession(t, Options{})

	req.NoError(s.Close())
	req.NoError(s.Close())

	req.ErrorIs(s.Send(protocol.Connect("x")), ErrSessionClosed)
	req.ErrorIs(s.Deliver([]byte("x\n")), ErrSessionClosed)
	select {
	case <-s.Done():
	default:
		req.Fail("Done not closed")
	}
}

func TestSession_SendToClosedPeerFails(t *testing.T) {
	req := require.New(t)
	s, remote, _ := newPipeSession(t, Options{})
	req.NoError(remote.Close())

	err := s.Send(protocol.Connect("x"))

	req.ErrorIs(err, ErrTransportClosed)
	req.True(s.Closed())
}

func TestSession_ContextCancelStopsRun(t *testing.T) {
	s, _, _ := newPipeSession(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(s, ctx)

	cancel()

	require.NoError(t, waitRun(t, done))
	require.True(t, s.Closed())
}

func TestSession_LenientFramesAreDelivered(t *testing.T) {
	req := require.New(t)
	s, remote, events := newPipeSession(t, Options{})
	runAsync(s, context.Background())

	_, err := remote.Write([]byte("garbage text with no markers\n"))
	req.NoError(err)

	req.Equal(protocol.Event{}, nextEvent(t, events))
}

func TestSession_StrictFramesCloseSession(t *testing.T) {
	req := require.New(t)
	s, remote, events := newPipeSession(t, Options{StrictFrames: true})
	done := runAsync(s, context.Background())

	go func() { _, _ = remote.Write([]byte("@type:Shout|@issuer:x|@payload:|\n")) }()

	err := waitRun(t, done)
	req.ErrorIs(err, protocol.ErrMalformedFrame)
	req.Empty(events)
}

func TestSession_FrameTooLarge(t *testing.T) {
	req := require.New(t)
	s, remote, _ := newPipeSession(t, Options{MaxFrameSize: 16, BufferSize: 64})
	done := runAsync(s, context.Background())

	go func() { _, _ = remote.Write([]byte(strings.Repeat("z", 40))) }()

	req.ErrorIs(waitRun(t, done), protocol.ErrFrameTooLarge)
}

func TestSession_RateLimitDropsMessages(t *testing.T) {
	req := require.New(t)
	s, remote, events := newPipeSession(t, Options{RateLimit: RateLimit{Burst: 2, RefillInterval: time.Hour}})
	runAsync(s, context.Background())

	var stream []byte
	stream = append(stream, protocol.Encode(protocol.Connect("spam"))...)
	for i := 0; i < 5; i++ {
		stream = append(stream, protocol.Encode(protocol.Message("spam", "x"))...)
	}
	stream = append(stream, protocol.Encode(protocol.Disconnect("spam"))...)
	_, err := remote.Write(stream)
	req.NoError(err)

	// Connect, two messages, then the Disconnect which is never limited
	req.Equal(protocol.KindConnect, nextEvent(t, events).Kind)
	req.Equal(protocol.KindMessage, nextEvent(t, events).Kind)
	req.Equal(protocol.KindMessage, nextEvent(t, events).Kind)
	req.Equal(protocol.KindDisconnect, nextEvent(t, events).Kind)
}

func TestSession_IdentityIsUnique(t *testing.T) {
	a, _, _ := newPipeSession(t, Options{})
	b, _, _ := newPipeSession(t, Options{})

	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, "pipe", a.Addr())
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"eof", io.EOF, true},
		{"wrapped closed", errors.Join(errors.New("read"), net.ErrClosed), true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, isExpectedCloseError(tt.err))
		})
	}
}
