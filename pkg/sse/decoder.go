package sse

import (
	"strings"
	"unicode/utf8"
)

// Decoder splits a pushed byte stream into Frames.
//
// It carries two buffers across Feed calls: the bytes of a UTF-8 sequence cut
// by the chunk boundary, and the decoded text of a frame whose blank-line
// terminator has not arrived yet. A Decoder never blocks and never fails:
// bytes that can never form valid UTF-8 are replaced with U+FFFD.
type Decoder struct {
	carry   []byte
	pending string

	// scanned is the offset in pending already searched for a delimiter.
	scanned int

	// cr is set when the last decoded chunk ended in '\r', which may be the
	// first half of a CRLF pair.
	cr bool

	done    bool
	flushed bool
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether the terminal frame has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed decodes chunk and returns the frames it completes. An empty chunk is
// valid and returns nothing. After the terminal frame, input is ignored.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done || d.flushed || len(chunk) == 0 {
		return nil
	}

	buf := chunk
	if len(d.carry) > 0 {
		buf = append(d.carry, chunk...)
		d.carry = nil
	}

	n := completePrefix(buf)
	if n < len(buf) {
		d.carry = append([]byte(nil), buf[n:]...)
	}

	d.append(decodeUTF8(buf[:n]))
	return d.split()
}

// Flush ends the stream: dangling UTF-8 bytes are replaced, and a frame that
// never saw its terminating blank line is returned if it carries data.
// Flush is idempotent.
func (d *Decoder) Flush() []Frame {
	if d.done || d.flushed {
		return nil
	}
	d.flushed = true

	if len(d.carry) > 0 {
		d.append(strings.Repeat(string(utf8.RuneError), len(d.carry)))
		d.carry = nil
	}
	if d.cr {
		d.cr = false
		d.pending += "\n"
	}

	frames := d.split()
	if d.done {
		return frames
	}

	if f, ok := parseBlock(d.pending); ok {
		frames = append(frames, d.mark(f))
	}
	d.pending = ""
	d.scanned = 0

	return frames
}

// append normalizes line endings (CRLF and lone CR become LF) and buffers text.
func (d *Decoder) append(text string) {
	if d.cr {
		text = "\r" + text
		d.cr = false
	}
	if strings.HasSuffix(text, "\r") {
		text = text[:len(text)-1]
		d.cr = true
	}
	if strings.IndexByte(text, '\r') >= 0 {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
	}
	d.pending += text
}

// split emits every complete frame in pending and keeps the remainder.
func (d *Decoder) split() []Frame {
	var frames []Frame
	for !d.done {
		idx := strings.Index(d.pending[d.scanned:], "\n\n")
		if idx < 0 {
			if len(d.pending) > 0 {
				d.scanned = len(d.pending) - 1
			}
			break
		}

		end := d.scanned + idx
		block := d.pending[:end]
		d.pending = d.pending[end+2:]
		d.scanned = 0

		if f, ok := parseBlock(block); ok {
			frames = append(frames, d.mark(f))
		}
	}
	return frames
}

func (d *Decoder) mark(f Frame) Frame {
	if f.Data == DoneSentinel {
		f.Terminal = true
		d.done = true
		d.pending = ""
		d.carry = nil
	}
	return f
}

// parseBlock parses the lines of one frame. Per the SSE spec a line has the
// form "field:value" where a single space after the colon is stripped.
// Comment lines start with ':'. A frame without any "data:" line is dropped.
func parseBlock(block string) (Frame, bool) {
	var (
		f       Frame
		hasData bool
	)

	for line := range strings.SplitSeq(block, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if hasData {
				f.Data += "\n"
			}
			f.Data += value
			hasData = true
		case "event":
			f.Event = value
		case "id":
			f.ID = value
		default:
			// "retry" and unknown fields are ignored.
		}
	}

	return f, hasData
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a UTF-8 sequence which more bytes could still complete.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

// decodeUTF8 converts b to a string, replacing every invalid byte with U+FFFD.
// Replacement is per byte so the result does not depend on chunk boundaries.
func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
