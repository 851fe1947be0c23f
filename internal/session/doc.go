// Package session drives one chat connection: the read loop that turns
// transport bytes into events, and the write path that turns events back
// into frames.
//
// Sessions are used on both sides of the protocol. The hub runs one per
// accepted connection; a client runs exactly one.
package session
