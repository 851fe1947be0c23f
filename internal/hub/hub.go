package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Tyrowin/multichat/internal/display"
	"github.com/Tyrowin/multichat/internal/metrics"
	"github.com/Tyrowin/multichat/internal/presence"
	"github.com/Tyrowin/multichat/internal/protocol"
	"github.com/Tyrowin/multichat/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrBindFailure is returned by Start when the listening address cannot
	// be acquired.
	ErrBindFailure = errors.New("hub: cannot bind listening address")
	// ErrHubStopped is returned when attaching a connection to a stopped hub.
	ErrHubStopped = errors.New("hub: stopped")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("hub: already started")
)

const (
	inboundQueueSize = 256
	acceptRetryDelay = 50 * time.Millisecond
)

// Options configures a hub.
type Options struct {
	BindAddress    string
	Port           int
	Session        session.Options
	StrictPresence bool
}

// Option customizes a Hub.
type Option func(*Hub)

// WithSink sends the hub transcript and participant list to sink.
func WithSink(sink display.Sink) Option {
	return func(h *Hub) { h.sink = sink }
}

// WithMetricsRegistry registers the hub collectors with reg instead of a
// private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(h *Hub) { h.promRegistry = reg }
}

type inbound struct {
	peer     Peer
	event    protocol.Event
	departed bool
}

// Hub accepts connections and relays their events. Session goroutines feed
// one channel; a single event loop applies presence and routes, so events
// from one connection are handled in the order they were framed.
type Hub struct {
	opts         Options
	log          *slog.Logger
	sink         display.Sink
	registry     *Registry
	router       *Router
	presence     *presence.Tracker
	promRegistry *prometheus.Registry
	metrics      *metrics.Hub

	inbound chan inbound

	mu       sync.Mutex
	listener net.Listener
	started  bool
	stopping bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	loopDone chan struct{}
}

// New creates a hub. Call Start to begin accepting connections.
func New(opts Options, log *slog.Logger, options ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		opts:     opts,
		log:      log,
		sink:     display.Discard,
		registry: NewRegistry(),
		presence: presence.NewTracker(opts.StrictPresence),
		inbound:  make(chan inbound, inboundQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	for _, opt := range options {
		opt(h)
	}
	if h.promRegistry == nil {
		h.promRegistry = prometheus.NewRegistry()
	}
	h.metrics = metrics.NewHub(h.promRegistry, metrics.DefaultNamespace)
	h.router = NewRouter(h.registry, h.metrics, log)
	return h
}

// Start binds the listening address and starts the accept and event loops.
// A bind failure wraps ErrBindFailure and is not retried.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping {
		return ErrHubStopped
	}
	if h.started {
		return ErrAlreadyStarted
	}

	address := net.JoinHostPort(h.opts.BindAddress, strconv.Itoa(h.opts.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		h.sink.Notice(display.LevelError, "Port already in use.")
		return fmt.Errorf("%w: %s: %v", ErrBindFailure, address, err)
	}

	h.listener = ln
	h.started = true
	go h.run()

	h.wg.Add(1)
	go h.acceptLoop(ln)

	h.log.Info("Hub listening", "address", ln.Addr().String())
	h.sink.Notice(display.LevelInfo, "Listening for client...")
	return nil
}

// Addr returns the bound listening address, or nil before Start.
func (h *Hub) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Gatherer exposes the hub's metrics registry.
func (h *Hub) Gatherer() prometheus.Gatherer {
	return h.promRegistry
}

// Participants returns the active participants in join order.
func (h *Hub) Participants() []string {
	return h.presence.Participants()
}

// Sessions returns the number of registered sessions.
func (h *Hub) Sessions() int {
	return h.registry.Len()
}

func (h *Hub) acceptLoop(ln net.Listener) {
	defer h.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if h.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			h.log.Warn("Accept failed", "error", err)
			select {
			case <-time.After(acceptRetryDelay):
				continue
			case <-h.ctx.Done():
				return
			}
		}
		if err := h.Serve(conn, conn.RemoteAddr().String()); err != nil {
			h.log.Debug("Rejected connection", "addr", conn.RemoteAddr().String(), "error", err)
		}
	}
}

// Serve attaches an accepted transport to the hub: the session is
// registered and its read loop started. The hub must be started.
func (h *Hub) Serve(conn io.ReadWriteCloser, addr string) error {
	h.mu.Lock()
	if !h.started || h.stopping {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrHubStopped
	}
	h.wg.Add(1)
	h.mu.Unlock()

	s := session.New(conn, addr, session.HandlerFunc(h.receive), h.opts.Session, h.log)
	h.registry.Register(s)
	h.metrics.Sessions.Set(float64(h.registry.Len()))
	h.log.Info("Client registered", "addr", addr, "sessions", h.registry.Len())

	go func() {
		defer h.wg.Done()
		if err := s.Run(h.ctx); err != nil {
			h.log.Info("Session ended with error", "addr", addr, "error", err)
		}
		h.enqueue(inbound{peer: s, departed: true})
	}()
	return nil
}

func (h *Hub) receive(s *session.Session, evt protocol.Event) {
	h.enqueue(inbound{peer: s, event: evt})
}

func (h *Hub) enqueue(in inbound) {
	select {
	case h.inbound <- in:
	case <-h.ctx.Done():
		if in.departed {
			h.registry.Unregister(in.peer)
		}
	}
}

func (h *Hub) run() {
	defer close(h.loopDone)

	for {
		select {
		case <-h.ctx.Done():
			return
		case in := <-h.inbound:
			if in.departed {
				h.depart(in.peer)
			} else {
				h.handle(in.peer, in.event)
			}
			h.updateGauges()
		}
	}
}

func (h *Hub) handle(peer Peer, evt protocol.Event) {
	h.metrics.EventsReceived.WithLabelValues(evt.Kind.String()).Inc()

	if !h.registry.Contains(peer) {
		h.log.Debug("Ignoring event from retired session", "addr", peer.Addr(), "kind", evt.Kind)
		return
	}
	recorded, _ := h.registry.Issuer(peer)
	if evt.Kind == protocol.KindDisconnect && evt.Issuer == "" {
		evt.Issuer = recorded
	}

	if evt.Kind.Valid() {
		tr, err := h.presence.Apply(evt)
		if err != nil {
			h.metrics.Violations.Inc()
			h.log.Warn("Rejected event", "addr", peer.Addr(), "error", err)
			if evt.Kind == protocol.KindDisconnect {
				h.depart(peer)
			}
			return
		}
		h.notePresence(tr)
	}
	if evt.Relayable() {
		h.sink.Display(evt)
	}

	res := h.router.Route(evt, peer)
	if res.OriginClosed && (evt.Kind != protocol.KindDisconnect || evt.Issuer != recorded) {
		// The origin was closed without its own Disconnect being applied.
		h.announceLeave(recorded)
	}
	h.retire(res.Failed)
}

// depart unregisters a session whose read loop ended. If it leaves without
// having sent a Disconnect, its departure is announced on its behalf.
func (h *Hub) depart(peer Peer) {
	issuer, removed := h.registry.Unregister(peer)
	_ = peer.Close()
	if !removed {
		return
	}
	h.log.Info("Client unregistered", "addr", peer.Addr(), "issuer", issuer, "sessions", h.registry.Len())
	h.announceLeave(issuer)
}

// announceLeave marks issuer as gone and tells everyone still registered,
// unless issuer is not an active participant.
func (h *Hub) announceLeave(issuer string) {
	if issuer == "" || h.presence.State(issuer) != presence.Active {
		return
	}
	evt := protocol.Disconnect(issuer)
	tr, _ := h.presence.Apply(evt)
	h.notePresence(tr)
	h.sink.Display(evt)

	res := h.router.broadcast(evt)
	h.retire(res.Failed)
}

func (h *Hub) retire(peers []Peer) {
	for _, peer := range peers {
		h.depart(peer)
	}
}

func (h *Hub) notePresence(tr presence.Transition) {
	if !tr.Changed() {
		return
	}
	if tr.To == presence.Active {
		h.sink.ParticipantJoined(tr.Issuer)
		return
	}
	h.sink.ParticipantLeft(tr.Issuer)
}

func (h *Hub) updateGauges() {
	h.metrics.Sessions.Set(float64(h.registry.Len()))
	h.metrics.Participants.Set(float64(len(h.presence.Participants())))
}

// Shutdown stops accepting connections, closes every session, and waits up
// to timeout for session goroutines to finish. It returns
// context.DeadlineExceeded if the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	if h.stopping {
		h.mu.Unlock()
		return nil
	}
	h.stopping = true
	started := h.started
	ln := h.listener
	h.mu.Unlock()

	h.log.Info("Initiating hub shutdown...")
	h.sink.Notice(display.LevelInfo, "Stopping the server...")

	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			h.log.Warn("Error closing listener", "error", err)
		}
	}
	h.cancel()
	if started {
		<-h.loopDone
	}

	peers := h.registry.Snapshot()
	for _, peer := range peers {
		_ = peer.Close()
	}
	h.log.Info("Closed client connections", "count", len(peers))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		h.log.Info("Hub shutdown completed")
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some sessions may still be running")
		err = context.DeadlineExceeded
	}

	h.presence.Reset()
	h.updateGauges()
	h.sink.Notice(display.LevelInfo, "Server stopped.")
	return err
}
