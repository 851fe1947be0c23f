package hub

import (
	"log/slog"

	"github.com/Tyrowin/multichat/internal/metrics"
	"github.com/Tyrowin/multichat/internal/protocol"
)

// Result reports what Route did with one event.
type Result struct {
	// Relayed is false when the event was ignored or rejected.
	Relayed bool
	// Delivered counts recipients whose queue accepted the frame.
	Delivered int
	// Failed lists recipients that could not take the frame. They are still
	// registered; the caller decides how to retire them.
	Failed []Peer
	// OriginClosed is true when the origin was unregistered and closed.
	OriginClosed bool
}

// Router relays inbound events to every registered peer. The sender is not
// excluded: display layers relabel their own messages.
type Router struct {
	registry *Registry
	metrics  *metrics.Hub
	log      *slog.Logger
}

// NewRouter builds a router over registry. m may be nil.
func NewRouter(registry *Registry, m *metrics.Hub, log *slog.Logger) *Router {
	return &Router{registry: registry, metrics: m, log: log}
}

// Route applies the relay policy for evt received from origin.
func (r *Router) Route(evt protocol.Event, origin Peer) Result {
	switch evt.Kind {
	case protocol.KindConnect:
		if evt.Issuer == "" {
			return Result{}
		}
		r.registry.UpdateIssuer(origin, evt.Issuer)
		return r.broadcast(evt)

	case protocol.KindMessage:
		if evt.Payload == "" {
			return Result{}
		}
		return r.broadcast(evt)

	case protocol.KindDisconnect:
		res := r.broadcast(evt)
		r.retire(origin)
		res.OriginClosed = true
		return res

	default:
		r.log.Warn("Closing session after unknown event type", "addr", origin.Addr(), "kind", evt.Kind)
		r.retire(origin)
		return Result{OriginClosed: true}
	}
}

func (r *Router) broadcast(evt protocol.Event) Result {
	frame := protocol.Encode(evt)
	res := Result{Relayed: true}

	for _, peer := range r.registry.Snapshot() {
		if err := peer.Deliver(frame); err != nil {
			r.log.Warn("Dropping recipient", "addr", peer.Addr(), "error", err)
			res.Failed = append(res.Failed, peer)
			continue
		}
		res.Delivered++
	}

	if r.metrics != nil {
		r.metrics.FramesRelayed.Add(float64(res.Delivered))
		r.metrics.DeliveryFailures.Add(float64(len(res.Failed)))
	}
	r.log.Debug("Broadcast event", "kind", evt.Kind, "issuer", evt.Issuer,
		"delivered", res.Delivered, "failed", len(res.Failed))
	return res
}

func (r *Router) retire(peer Peer) {
	r.registry.Unregister(peer)
	if err := peer.Close(); err != nil {
		r.log.Debug("Error closing session", "addr", peer.Addr(), "error", err)
	}
}
