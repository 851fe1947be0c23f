package protocol

import (
	"fmt"

	"github.com/samber/lo"
)

// Kind tags a chat event. The zero value is KindConnect.
type Kind uint8

const (
	KindConnect Kind = iota
	KindDisconnect
	KindMessage
)

var kindNames = []string{"Connect", "Disconnect", "Message"}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the enumerated tags.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

// ParseKind matches a wire name case-sensitively. Unknown names yield the
// zero tag and false.
func ParseKind(name string) (Kind, bool) {
	idx := lo.IndexOf(kindNames, name)
	if idx < 0 {
		return KindConnect, false
	}
	return Kind(idx), true
}

// Event is one semantic unit exchanged on the wire.
type Event struct {
	Kind    Kind
	Issuer  string
	Payload string
}

// Connect announces issuer's presence.
func Connect(issuer string) Event {
	return Event{Kind: KindConnect, Issuer: issuer}
}

// Disconnect announces issuer's departure.
func Disconnect(issuer string) Event {
	return Event{Kind: KindDisconnect, Issuer: issuer}
}

// Message carries text from issuer.
func Message(issuer, payload string) Event {
	return Event{Kind: KindMessage, Issuer: issuer, Payload: payload}
}

// Relayable reports whether the event carries enough information to be
// applied and relayed: a Connect needs an issuer, a Message needs a payload.
func (e Event) Relayable() bool {
	switch e.Kind {
	case KindConnect:
		return e.Issuer != ""
	case KindDisconnect:
		return true
	case KindMessage:
		return e.Payload != ""
	default:
		return false
	}
}
