package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/multichat/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler receives every event decoded by a session, in stream order, on
// the session's read goroutine.
type Handler interface {
	HandleEvent(s *Session, evt protocol.Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(s *Session, evt protocol.Event)

// HandleEvent calls f(s, evt).
func (f HandlerFunc) HandleEvent(s *Session, evt protocol.Event) { f(s, evt) }

// Options tunes a session. Zero fields take the defaults of DefaultOptions.
type Options struct {
	// BufferSize is the read chunk size.
	BufferSize int
	// MaxFrameSize caps a single frame, terminator included.
	MaxFrameSize int
	// SendQueueSize bounds frames queued by Deliver.
	SendQueueSize int
	// WriteTimeout applies to transports that support write deadlines.
	WriteTimeout time.Duration
	// StrictFrames closes the session on a malformed frame instead of
	// substituting defaults.
	StrictFrames bool
	RateLimit    RateLimit
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		BufferSize:    1024,
		MaxFrameSize:  64 << 10,
		SendQueueSize: 256,
		WriteTimeout:  10 * time.Second,
	}
}

func (o Options) sanitize() Options {
	def := DefaultOptions()
	if o.BufferSize <= 0 {
		o.BufferSize = def.BufferSize
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = def.MaxFrameSize
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = def.SendQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	return o
}

const flushTimeout = time.Second

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Session owns one transport. Run drives the read side; Send and Deliver
// drive the write side and may be called concurrently with Run.
type Session struct {
	id          string
	addr        string
	conn        io.ReadWriteCloser
	handler     Handler
	opts        Options
	log         *slog.Logger
	reassembler *protocol.Reassembler
	limiter     *tokenBucket

	writeMu sync.Mutex
	send    chan []byte

	closed      atomic.Bool
	closeOnce   sync.Once
	releaseOnce sync.Once
	done        chan struct{}
}

// New wraps conn and starts its write pump, which runs until Close. addr
// is used for logging only.
func New(conn io.ReadWriteCloser, addr string, handler Handler, opts Options, log *slog.Logger) *Session {
	opts = opts.sanitize()
	id := uuid.NewString()
	s := &Session{
		id:          id,
		addr:        addr,
		conn:        conn,
		handler:     handler,
		opts:        opts,
		log:         log.With("session", id, "addr", addr),
		reassembler: protocol.NewReassembler(opts.MaxFrameSize),
		limiter:     newTokenBucket(opts.RateLimit, nil),
		send:        make(chan []byte, opts.SendQueueSize),
		done:        make(chan struct{}),
	}
	go s.writePump()
	return s
}

// ID returns the session's unique identity.
func (s *Session) ID() string { return s.id }

// Addr returns the remote address given at construction.
func (s *Session) Addr() string { return s.addr }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// Run reads until the stream ends, the context is cancelled, or Close is
// called, and closes the session before returning. It returns nil on an
// orderly end.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	buf := make([]byte, s.opts.BufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if cerr := s.consume(buf[:n]); cerr != nil {
				s.log.Warn("Closing session", "error", cerr)
				return cerr
			}
		}
		if err != nil {
			return s.readError(err)
		}
	}
}

func (s *Session) consume(chunk []byte) error {
	frames, err := s.reassembler.Feed(chunk)
	for _, frame := range frames {
		if derr := s.dispatch(frame); derr != nil {
			return derr
		}
	}
	return err
}

func (s *Session) dispatch(frame string) error {
	if s.closed.Load() {
		return nil
	}

	evt, err := protocol.Parse(frame)
	if err != nil {
		if s.opts.StrictFrames {
			return err
		}
		s.log.Debug("Substituted defaults for malformed frame", "error", err)
	}

	if evt.Kind == protocol.KindMessage && !s.limiter.take() {
		s.log.Warn("Rate limit exceeded; discarding message",
			"burst", s.opts.RateLimit.Burst, "interval", s.opts.RateLimit.RefillInterval)
		return nil
	}

	s.handler.HandleEvent(s, evt)
	return nil
}

func (s *Session) readError(err error) error {
	if s.closed.Load() || isExpectedCloseError(err) {
		s.log.Debug("Connection closed", "reason", err)
		return nil
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: %v", protocol.ErrFrameTooLarge, err)
	}
	s.log.Warn("Read failed", "error", err)
	return fmt.Errorf("%w: %v", ErrTransportClosed, err)
}

// Send encodes evt and writes it before returning.
func (s *Session) Send(evt protocol.Event) error {
	return s.write(protocol.Encode(evt))
}

// Deliver queues an encoded frame for the write pump without blocking.
func (s *Session) Deliver(frame []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (s *Session) write(frame []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if err := s.writeFrame(frame, time.Now().Add(s.opts.WriteTimeout)); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

func (s *Session) writeFrame(frame []byte, deadline time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if d, ok := s.conn.(writeDeadliner); ok {
		if err := d.SetWriteDeadline(deadline); err != nil {
			s.log.Debug("Could not set write deadline", "error", err)
		}
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// writePump drains the Deliver queue. Once the session is closed it
// flushes what is still queued, bounded by flushTimeout, and releases the
// transport.
// pumpDeadline shortens the write deadline once the session is closing.
func (s *Session) pumpDeadline() time.Time {
	if s.closed.Load() {
		return time.Now().Add(min(flushTimeout, s.opts.WriteTimeout))
	}
	return time.Now().Add(s.opts.WriteTimeout)
}

func (s *Session) writePump() {
	defer s.releaseConn()

	for {
		select {
		case frame := <-s.send:
			if err := s.writeFrame(frame, s.pumpDeadline()); err != nil {
				if !s.closed.Load() {
					s.log.Warn("Write failed", "error", err)
				}
				_ = s.Close()
				return
			}
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *Session) flush() {
	deadline := time.Now().Add(min(flushTimeout, s.opts.WriteTimeout))
	for {
		select {
		case frame := <-s.send:
			if err := s.writeFrame(frame, deadline); err != nil {
				s.log.Debug("Dropped queued frames on close", "error", err)
				return
			}
		default:
			return
		}
	}
}

func (s *Session) releaseConn() {
	s.releaseOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn("Error closing connection", "error", err)
		}
	})
}

// Close closes the session. Frames already queued by Deliver are flushed
// by the write pump before the transport is released. It is safe to call
// more than once and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		// Bound a write the pump may be blocked in.
		if wd, ok := s.conn.(writeDeadliner); ok {
			_ = wd.SetWriteDeadline(time.Now().Add(min(flushTimeout, s.opts.WriteTimeout)))
		}
	})
	return nil
}
