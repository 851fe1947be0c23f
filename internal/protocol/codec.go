package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// FieldSeparator terminates every field of a frame.
	FieldSeparator byte = '|'
	// RecordTerminator terminates a frame. It never appears inside a field.
	RecordTerminator byte = '\n'

	escapeByte = '\\'

	typeLabel    = "@type:"
	issuerLabel  = "@issuer:"
	payloadLabel = "@payload:"
)

var labels = []string{typeLabel, issuerLabel, payloadLabel}

// ErrMalformedFrame is wrapped by every *MalformedError.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

// MalformedError describes what Parse could not find in a frame.
type MalformedError struct {
	Missing    []string
	UnknownTag bool
	Tag        string
}

func (e *MalformedError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if e.UnknownTag {
		parts = append(parts, fmt.Sprintf("unknown type %q", e.Tag))
	}
	return ErrMalformedFrame.Error() + ": " + strings.Join(parts, "; ")
}

func (e *MalformedError) Unwrap() error { return ErrMalformedFrame }

// Encode serializes an event into a complete frame, terminator included.
// Issuer and payload are escaped; values free of '\\', '|' and '\n' are
// written verbatim.
func Encode(e Event) []byte {
	var b bytes.Buffer
	b.Grow(len(typeLabel) + len(issuerLabel) + len(payloadLabel) + len(e.Issuer) + len(e.Payload) + 16)

	b.WriteString(typeLabel)
	b.WriteString(e.Kind.String())
	b.WriteByte(FieldSeparator)

	b.WriteString(issuerLabel)
	writeEscaped(&b, e.Issuer)
	b.WriteByte(FieldSeparator)

	b.WriteString(payloadLabel)
	writeEscaped(&b, e.Payload)
	b.WriteByte(FieldSeparator)

	b.WriteByte(RecordTerminator)
	return b.Bytes()
}

func writeEscaped(b *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case escapeByte:
			b.WriteString(`\\`)
		case FieldSeparator:
			b.WriteString(`\|`)
		case RecordTerminator:
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
}

func unescape(s string) string {
	if strings.IndexByte(s, escapeByte) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != escapeByte || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch next := s[i]; next {
		case 'n':
			b.WriteByte(RecordTerminator)
		case escapeByte, FieldSeparator:
			b.WriteByte(next)
		default:
			b.WriteByte(escapeByte)
			b.WriteByte(next)
		}
	}
	return b.String()
}

// Parse decodes a frame and reports what was missing or unrecognized. The
// returned event is always usable: absent fields are empty and an absent or
// unknown tag yields KindConnect. A non-nil error is a *MalformedError.
func Parse(frame string) (Event, error) {
	fields := scanFields(frame)

	var evt Event
	var malformed MalformedError

	tag, ok := fields[typeLabel]
	if !ok {
		malformed.Missing = append(malformed.Missing, "type")
	} else if evt.Kind, ok = ParseKind(tag); !ok {
		malformed.UnknownTag = true
		malformed.Tag = tag
	}

	if evt.Issuer, ok = fields[issuerLabel]; !ok {
		malformed.Missing = append(malformed.Missing, "issuer")
	}
	if evt.Payload, ok = fields[payloadLabel]; !ok {
		malformed.Missing = append(malformed.Missing, "payload")
	}

	if len(malformed.Missing) > 0 || malformed.UnknownTag {
		return evt, &malformed
	}
	return evt, nil
}

// Decode is the lenient policy over Parse: it never fails.
func Decode(frame string) Event {
	evt, _ := Parse(frame)
	return evt
}

// scanFields splits a frame on unescaped separators and maps each labelled
// segment to its unescaped value. A segment belongs to the label found
// earliest in it, the first segment for a label wins, and text after the
// last separator is not a field.
func scanFields(frame string) map[string]string {
	fields := make(map[string]string, len(labels))
	start := 0
	for i := 0; i < len(frame); i++ {
		switch frame[i] {
		case escapeByte:
			i++
		case FieldSeparator:
			assignField(fields, frame[start:i])
			start = i + 1
		}
	}
	return fields
}

func assignField(fields map[string]string, segment string) {
	label, at := "", -1
	for _, candidate := range labels {
		if idx := strings.Index(segment, candidate); idx >= 0 && (at < 0 || idx < at) {
			label, at = candidate, idx
		}
	}
	if at < 0 {
		return
	}
	if _, seen := fields[label]; seen {
		return
	}
	fields[label] = unescape(segment[at+len(label):])
}
