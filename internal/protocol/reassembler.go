package protocol

import (
	"bytes"
	"errors"
)

// ErrFrameTooLarge is returned by Reassembler.Feed when a frame outgrows the
// configured limit before its terminator arrives.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// Reassembler rebuilds terminator-delimited frames from the chunks of one
// stream. It is not safe for concurrent use; each connection owns one.
type Reassembler struct {
	buf          []byte
	scanned      int
	maxFrameSize int
}

// NewReassembler returns a Reassembler that rejects frames longer than
// maxFrameSize bytes. A non-positive limit disables the check.
func NewReassembler(maxFrameSize int) *Reassembler {
	return &Reassembler{maxFrameSize: maxFrameSize}
}

// Feed appends chunk and returns every frame completed by it, in stream
// order, terminator included. Partial frames are retained for the next call.
//
// On ErrFrameTooLarge the frames completed before the oversized one are
// still returned and the buffer is discarded.
func (r *Reassembler) Feed(chunk []byte) ([]string, error) {
	r.buf = append(r.buf, chunk...)

	var frames []string
	consumed := 0
	for {
		idx := bytes.IndexByte(r.buf[consumed+r.scanned:], RecordTerminator)
		if idx < 0 {
			break
		}
		end := consumed + r.scanned + idx + 1
		if r.tooLarge(end - consumed) {
			r.reset()
			return frames, ErrFrameTooLarge
		}
		frames = append(frames, string(r.buf[consumed:end]))
		consumed = end
		r.scanned = 0
	}

	r.scanned = len(r.buf) - consumed
	if consumed > 0 {
		r.buf = append(r.buf[:0], r.buf[consumed:]...)
	}
	if r.tooLarge(len(r.buf)) {
		r.reset()
		return frames, ErrFrameTooLarge
	}
	return frames, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

func (r *Reassembler) tooLarge(n int) bool {
	return r.maxFrameSize > 0 && n > r.maxFrameSize
}

func (r *Reassembler) reset() {
	r.buf = r.buf[:0]
	r.scanned = 0
}
