package initcmder_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/tokenstream/cmd/tokenstream/init"
	"github.com/papercomputeco/tokenstream/pkg/config"
)

func loadConfig(dir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(dir, ".tokenstream", "config.toml"))
	Expect(err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	Expect(toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}

func execute(args ...string) error {
	cmd := initcmder.NewInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return cmd.Execute()
}

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "tokenstream-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("creates a .tokenstream directory with a default config", func() {
		Expect(execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".tokenstream"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Proxy.Upstream).To(Equal("https://api.openai.com"))
		Expect(cfg.Proxy.Listen).To(Equal(":8080"))
		Expect(cfg.Parser.Format).To(Equal(config.FormatAuto))
	})

	It("keeps an existing config when re-run without a preset", func() {
		Expect(execute("--preset", "ollama")).To(Succeed())
		Expect(execute()).To(Succeed())

		Expect(loadConfig(tmpDir).Proxy.Upstream).To(Equal("http://localhost:11434"))
	})

	It("does not touch other files in an existing directory", func() {
		dir := filepath.Join(tmpDir, ".tokenstream")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		keep := filepath.Join(dir, "notes.txt")
		Expect(os.WriteFile(keep, []byte("keep"), 0o600)).To(Succeed())

		Expect(execute()).To(Succeed())

		data, err := os.ReadFile(keep)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("keep"))
	})

	DescribeTable("named presets",
		func(preset, upstream string) {
			Expect(execute("--preset", preset)).To(Succeed())
			Expect(loadConfig(tmpDir).Proxy.Upstream).To(Equal(upstream))
		},
		Entry("openai", "openai", "https://api.openai.com"),
		Entry("openrouter", "openrouter", "https://openrouter.ai/api"),
		Entry("ollama", "ollama", "http://localhost:11434"),
	)

	It("rejects unknown preset names without creating anything", func() {
		err := execute("--preset", "invalid-provider")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))

		_, statErr := os.Stat(filepath.Join(tmpDir, ".tokenstream"))
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	Describe("--preset with remote URL", func() {
		It("fetches and writes remote config.toml", func() {
			remoteCfg := `version = 0

[parser]
format = "json"
repair = true

[proxy]
upstream = "https://openrouter.ai/api"
listen = ":9090"
`
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, remoteCfg)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Parser.Format).To(Equal("json"))
			Expect(cfg.Parser.Repair).To(BeTrue())
			Expect(cfg.Proxy.Upstream).To(Equal("https://openrouter.ai/api"))
			Expect(cfg.Proxy.Listen).To(Equal(":9090"))
		})

		It("returns error for non-200 HTTP response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(MatchError(ContainSubstring("HTTP 404")))
		})

		It("returns error for invalid TOML from URL", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(MatchError(ContainSubstring("parsing")))
		})

		It("returns error for unreachable URL", func() {
			Expect(execute("--preset", "http://127.0.0.1:1")).To(MatchError(ContainSubstring("fetching remote config")))
		})
	})
})
