package sse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// feedAll pushes input in chunks of size n and flushes.
func feedAll(input []byte, n int) []Frame {
	d := NewDecoder()
	var frames []Frame
	for start := 0; start < len(input); start += n {
		end := min(start+n, len(input))
		frames = append(frames, d.Feed(input[start:end])...)
	}
	return append(frames, d.Flush()...)
}

var _ = Describe("Decoder", func() {
	var d *Decoder

	BeforeEach(func() {
		d = NewDecoder()
	})

	It("returns a frame only once its blank line arrives", func() {
		Expect(d.Feed([]byte("data: hel"))).To(BeEmpty())
		Expect(d.Feed([]byte("lo\n"))).To(BeEmpty())

		frames := d.Feed([]byte("\n"))
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Data).To(Equal("hello"))
		Expect(frames[0].Terminal).To(BeFalse())
	})

	It("returns several frames from one chunk in order", func() {
		frames := d.Feed([]byte("data: a\n\ndata: b\n\ndata: c"))
		Expect(frames).To(HaveLen(2))
		Expect(frames[0].Data).To(Equal("a"))
		Expect(frames[1].Data).To(Equal("b"))

		frames = d.Flush()
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Data).To(Equal("c"))
	})

	It("ignores an empty chunk", func() {
		Expect(d.Feed(nil)).To(BeEmpty())
		Expect(d.Feed([]byte{})).To(BeEmpty())
	})

	Context("terminal frame", func() {
		It("marks [DONE] and ignores everything after it", func() {
			frames := d.Feed([]byte("data: x\n\ndata: [DONE]\n\ndata: late\n\n"))
			Expect(frames).To(HaveLen(2))
			Expect(frames[1].Terminal).To(BeTrue())
			Expect(d.Done()).To(BeTrue())

			Expect(d.Feed([]byte("data: later\n\n"))).To(BeEmpty())
			Expect(d.Flush()).To(BeEmpty())
		})

		It("accepts an unterminated [DONE] at end of input", func() {
			d.Feed([]byte("data: [DONE]"))
			frames := d.Flush()
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Terminal).To(BeTrue())
		})
	})

	Context("line endings", func() {
		It("treats CRLF delimiters like LF", func() {
			frames := d.Feed([]byte("data: a\r\n\r\ndata: b\r\n\r\n"))
			Expect(frames).To(HaveLen(2))
			Expect(frames[0].Data).To(Equal("a"))
			Expect(frames[1].Data).To(Equal("b"))
		})

		It("handles a CRLF pair split across chunks", func() {
			Expect(d.Feed([]byte("data: a\r"))).To(BeEmpty())
			Expect(d.Feed([]byte("\n\r"))).To(BeEmpty())
			frames := d.Feed([]byte("\n"))
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Data).To(Equal("a"))
		})
	})

	Context("UTF-8", func() {
		It("carries a multi-byte sequence split across chunks", func() {
			euro := []byte("€") // e2 82 ac
			Expect(d.Feed(append([]byte("data: "), euro[0]))).To(BeEmpty())
			Expect(d.Feed(euro[1:2])).To(BeEmpty())

			frames := d.Feed(append(euro[2:], '\n', '\n'))
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Data).To(Equal("€"))
		})

		It("replaces invalid bytes with U+FFFD", func() {
			frames := d.Feed([]byte("data: a\xffb\n\n"))
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Data).To(Equal("a�b"))
		})

		It("replaces a truncated sequence at end of input", func() {
			d.Feed([]byte("data: x\xe2\x82"))
			frames := d.Flush()
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Data).To(Equal("x��"))
		})

		It("replaces a lead byte whose continuation never arrives", func() {
			Expect(d.Feed([]byte("data: \xe2"))).To(BeEmpty())
			frames := d.Feed([]byte("A\n\n"))
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Data).To(Equal("�A"))
		})
	})

	It("produces the same frames for every chunk size", func() {
		input := []byte(": keep-alive\r\n\r\n" +
			"event: delta\ndata: {\"c\":\"日本語 ✓\"}\n\n" +
			"data: line1\ndata: line2\r\n\r\n" +
			"id: 7\ndata: bad\xff\n\n" +
			"data: [DONE]\n\n")

		want := feedAll(input, len(input))
		Expect(want).To(HaveLen(4))
		Expect(want[3].Terminal).To(BeTrue())

		for n := 1; n < len(input); n++ {
			Expect(feedAll(input, n)).To(Equal(want), "chunk size %d", n)
		}
	})
})
