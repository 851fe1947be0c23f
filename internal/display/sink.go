//go:generate go run go.uber.org/mock/mockgen -source=sink.go -destination=../mocks/mock_sink.go -package=mocks

// Package display defines where chat activity is rendered and provides a
// console renderer for the CLI.
package display

import "github.com/Tyrowin/multichat/internal/protocol"

// Notice levels.
const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

// Sink receives everything a user interface shows: chat events, changes to
// the participant list, and local notices such as "Server disconnected".
// Implementations must be safe for concurrent use.
type Sink interface {
	Display(evt protocol.Event)
	ParticipantJoined(name string)
	ParticipantLeft(name string)
	Notice(level, text string)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Display(protocol.Event)   {}
func (discard) ParticipantJoined(string) {}
func (discard) ParticipantLeft(string)   {}
func (discard) Notice(string, string)    {}
