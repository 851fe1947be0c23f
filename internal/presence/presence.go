// Package presence tracks which participants are active, as seen by the side
// receiving events, and validates lifecycle transitions.
package presence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Tyrowin/multichat/internal/protocol"
	"github.com/samber/lo"
)

// ErrProtocolViolation is returned in strict mode for a Message or
// Disconnect from an issuer that is not active.
var ErrProtocolViolation = errors.New("presence: protocol violation")

// State of one participant.
type State uint8

const (
	Absent State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "Active"
	}
	return "Absent"
}

// Transition records the effect of one applied event.
type Transition struct {
	Issuer string
	From   State
	To     State
}

// Changed reports whether the participant list was modified.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Tracker holds the ordered list of active participants. Names are not
// unique: each Connect appends and each Disconnect removes one occurrence.
// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	strict bool
	active []string
}

// NewTracker returns an empty tracker. In strict mode events from issuers
// that never connected are rejected.
func NewTracker(strict bool) *Tracker {
	return &Tracker{strict: strict}
}

// Apply validates evt against the current state and applies it. Events that
// are not relayable leave the tracker untouched.
func (t *Tracker) Apply(evt protocol.Event) (Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.stateLocked(evt.Issuer)
	tr := Transition{Issuer: evt.Issuer, From: from, To: from}
	if !evt.Relayable() {
		return tr, nil
	}

	switch evt.Kind {
	case protocol.KindConnect:
		t.active = append(t.active, evt.Issuer)
		tr.To = Active
		// A second connection under the same name is still a join.
		tr.From = Absent
	case protocol.KindDisconnect:
		if from != Active {
			return tr, t.violation(evt)
		}
		idx := lo.IndexOf(t.active, evt.Issuer)
		t.active = append(t.active[:idx], t.active[idx+1:]...)
		tr.To = Absent
		tr.From = Active
	case protocol.KindMessage:
		if from != Active {
			return tr, t.violation(evt)
		}
	}
	return tr, nil
}

func (t *Tracker) violation(evt protocol.Event) error {
	if !t.strict {
		return nil
	}
	return fmt.Errorf("%w: %s from %q who is not active", ErrProtocolViolation, evt.Kind, evt.Issuer)
}

// State returns the current state of issuer.
func (t *Tracker) State(issuer string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stateLocked(issuer)
}

func (t *Tracker) stateLocked(issuer string) State {
	if issuer != "" && lo.Contains(t.active, issuer) {
		return Active
	}
	return Absent
}

// Participants returns the active participants in join order.
func (t *Tracker) Participants() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.active...)
}

// Reset forgets every participant.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = nil
}
