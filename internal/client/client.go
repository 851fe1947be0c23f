// Package client joins a MultiChat hub under a display name and renders the
// conversation through a display.Sink.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/multichat/internal/display"
	"github.com/Tyrowin/multichat/internal/presence"
	"github.com/Tyrowin/multichat/internal/protocol"
	"github.com/Tyrowin/multichat/internal/session"
)

var (
	// ErrEmptyMessage is returned by Say for empty text.
	ErrEmptyMessage = errors.New("client: message is empty")
	// ErrEmptyName is returned when joining without a display name.
	ErrEmptyName = errors.New("client: display name is empty")
)

// Config describes where and as whom to connect.
type Config struct {
	Address     string
	Port        int
	DisplayName string
	DialTimeout time.Duration
	Session     session.Options
}

// Client is one participant's connection to the hub.
type Client struct {
	name     string
	log      *slog.Logger
	sink     display.Sink
	session  *session.Session
	presence *presence.Tracker

	leaving atomic.Bool
	done    chan struct{}
	err     error
}

// Dial connects to the hub over TCP and joins under cfg.DisplayName.
func Dial(ctx context.Context, cfg Config, sink display.Sink, log *slog.Logger) (*Client, error) {
	if cfg.DisplayName == "" {
		return nil, ErrEmptyName
	}
	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		sink.Notice(display.LevelError, "Could not connect to "+addr)
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return Join(ctx, conn, addr, cfg, sink, log)
}

// Join announces cfg.DisplayName on an established transport and starts
// reading the hub's events. The client stops when ctx is cancelled, when
// Disconnect is called, or when the hub closes the stream.
func Join(ctx context.Context, conn io.ReadWriteCloser, addr string, cfg Config, sink display.Sink, log *slog.Logger) (*Client, error) {
	if cfg.DisplayName == "" {
		_ = conn.Close()
		return nil, ErrEmptyName
	}
	c := &Client{
		name:     cfg.DisplayName,
		log:      log.With("issuer", cfg.DisplayName),
		sink:     sink,
		presence: presence.NewTracker(false),
		done:     make(chan struct{}),
	}
	c.session = session.New(conn, addr, session.HandlerFunc(c.receive), cfg.Session, c.log)
	go c.run(ctx)

	if err := c.session.Send(protocol.Connect(c.name)); err != nil {
		c.leaving.Store(true)
		_ = c.session.Close()
		<-c.done
		return nil, fmt.Errorf("client: join %s: %w", addr, err)
	}
	c.log.Info("Joined hub", "addr", addr)
	c.sink.Notice(display.LevelInfo, "Connected!")
	return c, nil
}

// Name returns the display name the client joined with.
func (c *Client) Name() string { return c.name }

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the read loop ended, once Done is closed. An orderly
// close yields nil.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Participants returns the participants seen since joining, in join order.
func (c *Client) Participants() []string {
	return c.presence.Participants()
}

// Say sends text to the room.
func (c *Client) Say(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	return c.session.Send(protocol.Message(c.name, text))
}

// Disconnect announces the departure, closes the connection, and waits
// for the read loop to finish. Calling it again is a no-op.
func (c *Client) Disconnect() error {
	if !c.leaving.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}
	err := c.session.Send(protocol.Disconnect(c.name))
	_ = c.session.Close()
	<-c.done
	if errors.Is(err, session.ErrSessionClosed) {
		return nil
	}
	return err
}

func (c *Client) receive(_ *session.Session, evt protocol.Event) {
	tr, _ := c.presence.Apply(evt)
	if tr.Changed() {
		if tr.To == presence.Active {
			c.sink.ParticipantJoined(tr.Issuer)
		} else {
			c.sink.ParticipantLeft(tr.Issuer)
		}
	}
	if evt.Relayable() {
		c.sink.Display(evt)
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	c.err = c.session.Run(ctx)
	c.presence.Reset()

	if c.leaving.Load() || ctx.Err() != nil {
		c.log.Info("Left hub")
		c.sink.Notice(display.LevelInfo, "Disconnected...")
		return
	}
	c.log.Warn("Hub closed the connection", "error", c.err)
	c.sink.Notice(display.LevelError, "Server disconnected")
}
