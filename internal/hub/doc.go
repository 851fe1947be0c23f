// Package hub implements the coordinating side of MultiChat: it accepts
// connections, keeps the connection registry, tracks presence, and relays
// every event to all registered sessions.
//
// The implementation is organized into the registry, the broadcast router,
// the hub lifecycle and event loop, and the optional HTTP side-car that
// serves health, participants, metrics, and a WebSocket gateway.
package hub
