package display

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/Tyrowin/multichat/internal/protocol"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// SelfLabel replaces the local participant's name in rendered lines.
const SelfLabel = "You"

// Console renders chat activity as timestamped lines:
//
//	[15:04:05] alice: hi
//	[15:04:07] bob connected!
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	self   string
	colors bool
	now    func() time.Time
	roster []string
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithSelf relabels events issued by name as SelfLabel.
func WithSelf(name string) ConsoleOption {
	return func(c *Console) { c.self = name }
}

// WithColors colours notice tags.
func WithColors(enabled bool) ConsoleOption {
	return func(c *Console) { c.colors = enabled }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ConsoleOption {
	return func(c *Console) { c.now = now }
}

// NewConsole writes to out.
func NewConsole(out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{out: out, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) Display(evt protocol.Event) {
	issuer := evt.Issuer
	if c.self != "" && issuer == c.self {
		issuer = SelfLabel
	}

	switch evt.Kind {
	case protocol.KindConnect:
		c.line("", issuer+" connected!")
	case protocol.KindDisconnect:
		c.line("", issuer+" disconnected!")
	case protocol.KindMessage:
		c.line(issuer, evt.Payload)
	}
}

func (c *Console) ParticipantJoined(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roster = append(c.roster, name)
}

func (c *Console) ParticipantLeft(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := lo.IndexOf(c.roster, name); idx >= 0 {
		c.roster = append(c.roster[:idx], c.roster[idx+1:]...)
	}
}

func (c *Console) Notice(level, text string) {
	tag := level
	if c.colors {
		switch level {
		case LevelError:
			tag = color.Red.Sprint(level)
		case LevelInfo:
			tag = color.Cyan.Sprint(level)
		}
	}
	c.line(tag, text)
}

// Roster returns the participants seen joining and not yet leaving.
func (c *Console) Roster() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.roster...)
}

// PrintRoster writes the current roster as a table.
func (c *Console) PrintRoster() {
	names := c.Roster()
	c.mu.Lock()
	defer c.mu.Unlock()
	WriteRoster(c.out, names)
}

func (c *Console) line(label, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := c.now().Format("15:04:05")
	if label != "" {
		_, _ = fmt.Fprintf(c.out, "[%s] %s: %s\n", stamp, label, text)
		return
	}
	_, _ = fmt.Fprintf(c.out, "[%s] %s\n", stamp, text)
}

// WriteRoster renders names as a numbered table.
func WriteRoster(w io.Writer, names []string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Participant"})
	for i, name := range names {
		table.Append([]string{strconv.Itoa(i + 1), name})
	}
	table.Render()
}
