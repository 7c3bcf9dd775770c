package tap

import (
	"io"

	"github.com/papercomputeco/tokenstream/pkg/sse"
)

// Writer passes every byte written to it through to a destination unchanged,
// with the same write boundaries, while decoding a private copy of the stream
// for the Inspector.
type Writer struct {
	dst     io.Writer
	decoder *sse.Decoder
	insp    *Inspector
	closed  bool
}

// NewWriter returns a Writer forwarding to dst and reporting to insp.
func NewWriter(dst io.Writer, insp *Inspector) *Writer {
	return &Writer{
		dst:     dst,
		decoder: sse.NewDecoder(),
		insp:    insp,
	}
}

// Write forwards p to the destination and inspects the bytes that were
// accepted.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 && !w.closed {
		inspect(w.insp, w.decoder.Feed(p[:n]))
	}
	return n, err
}

// Close flushes the decoder and finalizes the Inspector. The destination is
// not closed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	inspect(w.insp, w.decoder.Flush())
	w.insp.Finalize()
	return nil
}

func inspect(insp *Inspector, frames []sse.Frame) {
	for _, f := range frames {
		if !f.Terminal {
			insp.Inspect([]byte(f.Data))
		}
	}
}

// Reader is the pull-side equivalent of Writer.
type Reader struct {
	src     io.Reader
	decoder *sse.Decoder
	insp    *Inspector
	done    bool
}

// NewReader returns a Reader that yields src unchanged while inspecting it.
// The Inspector is finalized when src reports io.EOF.
func NewReader(src io.Reader, insp *Inspector) *Reader {
	return &Reader{
		src:     src,
		decoder: sse.NewDecoder(),
		insp:    insp,
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if r.done {
		return n, err
	}

	if n > 0 {
		inspect(r.insp, r.decoder.Feed(p[:n]))
	}
	if err == io.EOF {
		r.done = true
		inspect(r.insp, r.decoder.Flush())
		r.insp.Finalize()
	}
	return n, err
}
