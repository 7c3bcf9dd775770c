package tap_test

import (
	"bytes"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tokenstream/pkg/llm"
	"github.com/papercomputeco/tokenstream/pkg/tap"
)

const stream = "data: {\"id\":\"gen-1\",\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
	": OPENROUTER PROCESSING\n\n" +
	"data: {\"id\":\"gen-2\",\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n" +
	"data: {\"id\":\"gen-1\",\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2,\"total_tokens\":6}}\n\n" +
	"data: {\"usage\":{\"prompt_tokens\":99}}\n\n" +
	"data: [DONE]\n\n"

// recorder collects callback invocations.
type recorder struct {
	ids     []string
	reports []tap.Report
}

func (r *recorder) callbacks() tap.Callbacks {
	return tap.Callbacks{
		OnID:    func(id string) { r.ids = append(r.ids, id) },
		OnUsage: func(rep tap.Report) { r.reports = append(r.reports, rep) },
	}
}

var _ = Describe("Inspector", func() {
	var (
		rec  *recorder
		insp *tap.Inspector
	)

	BeforeEach(func() {
		rec = &recorder{}
		insp = tap.NewInspector(rec.callbacks(), nil)
	})

	It("fires OnID and OnUsage once with the first values", func() {
		insp.Inspect([]byte(`{"id":"a"}`))
		insp.Inspect([]byte(`{"id":"b","usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
		insp.Inspect([]byte(`{"usage":{"prompt_tokens":7}}`))
		insp.Finalize()

		Expect(rec.ids).To(Equal([]string{"a"}))
		Expect(rec.reports).To(Equal([]tap.Report{{
			Usage:        llm.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
			HasUsageData: true,
		}}))
		Expect(insp.ID()).To(Equal("a"))
	})

	It("reports missing usage on finalize", func() {
		insp.Inspect([]byte(`{"id":"x","usage":null}`))
		insp.Finalize()
		insp.Finalize()

		Expect(rec.reports).To(Equal([]tap.Report{{HasUsageData: false}}))
	})

	It("waits for a populated usage object", func() {
		insp.Inspect([]byte(`{"id":"x","usage":{}}`))
		Expect(rec.reports).To(BeEmpty())

		insp.Inspect([]byte(`{"usage":{"completion_tokens":4}}`))
		insp.Finalize()
		Expect(rec.reports).To(Equal([]tap.Report{{
			Usage:        llm.Usage{CompletionTokens: 4},
			HasUsageData: true,
		}}))
	})

	It("ignores non-JSON payloads", func() {
		insp.Inspect([]byte("not json"))
		insp.Inspect([]byte(`{"id":`))
		Expect(rec.ids).To(BeEmpty())
	})

	It("tolerates nil callbacks", func() {
		i := tap.NewInspector(tap.Callbacks{}, nil)
		Expect(func() {
			i.Inspect([]byte(`{"id":"a","usage":{"total_tokens":1}}`))
			i.Finalize()
		}).NotTo(Panic())
		Expect(i.Report().HasUsageData).To(BeTrue())
	})
})

// chunkRecorder records every write separately.
type chunkRecorder struct {
	writes [][]byte
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

var _ = Describe("Writer", func() {
	It("forwards every chunk unchanged with the same boundaries", func() {
		rec := &recorder{}
		dst := &chunkRecorder{}
		w := tap.NewWriter(dst, tap.NewInspector(rec.callbacks(), nil))

		input := []byte(stream)
		var chunks [][]byte
		for start := 0; start < len(input); start += 7 {
			chunk := input[start:min(start+7, len(input))]
			chunks = append(chunks, chunk)
			n, err := w.Write(chunk)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(chunk)))
		}
		Expect(w.Close()).To(Succeed())

		Expect(dst.writes).To(Equal(chunks))
		Expect(bytes.Join(dst.writes, nil)).To(Equal(input))

		Expect(rec.ids).To(Equal([]string{"gen-1"}))
		Expect(rec.reports).To(HaveLen(1))
		Expect(rec.reports[0].HasUsageData).To(BeTrue())
		Expect(rec.reports[0].Usage.TotalTokens).To(Equal(6))
	})

	It("reports missing usage when closed early", func() {
		rec := &recorder{}
		w := tap.NewWriter(io.Discard, tap.NewInspector(rec.callbacks(), nil))

		_, err := w.Write([]byte("data: {\"id\":\"gen-9\"}\n\ndata: {\"usa"))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		Expect(w.Close()).To(Succeed())

		Expect(rec.ids).To(Equal([]string{"gen-9"}))
		Expect(rec.reports).To(Equal([]tap.Report{{}}))
	})
})

var _ = Describe("Reader", func() {
	It("yields the source verbatim and finalizes at EOF", func() {
		rec := &recorder{}
		r := tap.NewReader(iotest.HalfReader(strings.NewReader(stream)), tap.NewInspector(rec.callbacks(), nil))

		out, err := io.ReadAll(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(stream))

		Expect(rec.ids).To(Equal([]string{"gen-1"}))
		Expect(rec.reports).To(HaveLen(1))
		Expect(rec.reports[0].Usage.PromptTokens).To(Equal(4))
	})
})
