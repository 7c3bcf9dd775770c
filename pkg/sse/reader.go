package sse

import (
	"io"
)

const readBufferSize = 32 * 1024

// TeeReader reads SSE frames from a source io.Reader while simultaneously
// writing all raw bytes verbatim to a destination io.writer.
// This effectively enables "tee" shaped reading where TeeReader.Next
// returns the Frame for consumption while writing to a separate destination.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │ TeeReader.Next() │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Frame       │
// └──────────────────┘
//
// An SSE client io.Writer receives the exact copy of the
// stream, while the caller can inspect parsed frames.
type TeeReader struct {
	src     io.Reader
	dest    io.Writer
	decoder *Decoder

	buf   []byte
	queue []Frame
	eof   bool
}

// NewTeeReader returns a Reader that parses SSE frames from the src io.Reader
// and writes all raw bytes through to dest.
// The dest writer typically backs an io.Pipe connected to the downstream HTTP
// response. A nil dest discards the copy.
func NewTeeReader(src io.Reader, dest io.Writer) *TeeReader {
	if dest == nil {
		dest = io.Discard
	}

	return &TeeReader{
		src:     src,
		dest:    dest,
		decoder: NewDecoder(),
		buf:     make([]byte, readBufferSize),
	}
}

// Next returns the next parsed SSE frame. It blocks until a complete frame
// is available (terminated by a blank line in the stream).
// Next returns nil, nil when the source is exhausted.
//
// Next also tees all bytes to the destination writer supplied
// to NewTeeReader, including bytes read after the terminal frame. This
// ensures the downstream client receivers can consume SSE stream bytes
// verbatim.
func (r *TeeReader) Next() (*Frame, error) {
	for len(r.queue) == 0 {
		if r.eof {
			return nil, nil
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			if _, werr := r.dest.Write(r.buf[:n]); werr != nil {
				return nil, werr
			}
			r.queue = append(r.queue, r.decoder.Feed(r.buf[:n])...)
		}

		switch {
		case err == io.EOF:
			r.queue = append(r.queue, r.decoder.Flush()...)
			r.eof = true
		case err != nil:
			return nil, err
		}
	}

	f := r.queue[0]
	r.queue = r.queue[1:]
	return &f, nil
}
