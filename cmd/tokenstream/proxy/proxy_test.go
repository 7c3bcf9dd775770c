package proxycmder_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	proxycmder "github.com/papercomputeco/tokenstream/cmd/tokenstream/proxy"
	"github.com/papercomputeco/tokenstream/pkg/config"
	"github.com/papercomputeco/tokenstream/pkg/eventstream/kafka"
	"github.com/papercomputeco/tokenstream/pkg/eventstream/nop"
	"github.com/papercomputeco/tokenstream/pkg/logger"
)

var _ = Describe("NewProxyCmd", func() {
	It("registers flags from the shared registry", func() {
		cmd := proxycmder.NewProxyCmd()
		for _, name := range []string{"listen", "upstream", "capture", "workers", "publisher", "brokers", "topic", "line-events", "brackets", "repair"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("upstream").Shorthand).To(Equal("u"))
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8080"))
	})

	It("rejects positional arguments", func() {
		cmd := proxycmder.NewProxyCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})
})

var _ = Describe("proxyConfig", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.NewDefaultConfig()
	})

	It("maps proxy settings and defaults to the nop publisher", func() {
		pcfg, err := proxycmder.ProxyConfig(cfg, GinkgoT().TempDir(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer pcfg.Publisher.Close()

		Expect(pcfg.ListenAddr).To(Equal(":8080"))
		Expect(pcfg.UpstreamURL).To(Equal("https://api.openai.com"))
		Expect(pcfg.NumWorkers).To(Equal(uint(3)))
		Expect(pcfg.ParserOptions).To(HaveLen(3))
		Expect(pcfg.CaptureDir).To(BeEmpty())
		Expect(pcfg.Publisher).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("creates the capture directory when capture is on", func() {
		dir := GinkgoT().TempDir()
		cfg.Proxy.Capture = true

		pcfg, err := proxycmder.ProxyConfig(cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer pcfg.Publisher.Close()

		Expect(pcfg.CaptureDir).To(HaveSuffix("captures"))
		info, err := os.Stat(pcfg.CaptureDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("fails for unknown publishers", func() {
		cfg.Publisher.Provider = "sqs"
		_, err := proxycmder.ProxyConfig(cfg, GinkgoT().TempDir(), logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unknown publisher")))
	})
})

var _ = Describe("newPublisher", func() {
	It("builds a kafka publisher from the broker list", func() {
		pub, err := proxycmder.NewPublisher(config.PublisherConfig{
			Provider: config.PublisherKafka,
			Brokers:  "localhost:9092, localhost:9093",
			Topic:    "streams",
			ClientID: "test",
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(pub).To(BeAssignableToTypeOf(&kafka.Publisher{}))
		Expect(pub.Close()).To(Succeed())
	})

	It("fails for kafka without brokers", func() {
		_, err := proxycmder.NewPublisher(config.PublisherConfig{
			Provider: config.PublisherKafka,
			Topic:    "streams",
		}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("creating kafka publisher")))
	})
})
