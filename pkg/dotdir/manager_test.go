package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tokenstream/pkg/dotdir"
)

var _ = Describe("dotdir", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())

		// Resolve symlinks so paths match filepath.Abs results
		// (e.g. on macOS /var -> /private/var).
		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	chdir := func(dir string) {
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(func() { os.Chdir(origDir) })
	}

	Describe("Target", func() {
		It("creates the directory if it doesn't exist", func() {
			dir := filepath.Join(tmpDir, "newdir")
			result, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(dir))

			info, err := os.Stat(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		It("returns the override dir even when a local .tokenstream dir exists", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, ".tokenstream"), 0o755)).To(Succeed())
			chdir(tmpDir)

			overrideDir := filepath.Join(tmpDir, "override")
			result, err := m.Target(overrideDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(overrideDir))
		})

		It("returns the local .tokenstream dir when it exists and no override is provided", func() {
			local := filepath.Join(tmpDir, ".tokenstream")
			Expect(os.Mkdir(local, 0o755)).To(Succeed())
			chdir(tmpDir)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(local))
		})

		It("falls back to the home directory", func() {
			emptyDir := filepath.Join(tmpDir, "empty")
			Expect(os.Mkdir(emptyDir, 0o755)).To(Succeed())
			chdir(emptyDir)

			origHome := os.Getenv("HOME")
			Expect(os.Setenv("HOME", tmpDir)).To(Succeed())
			DeferCleanup(func() { os.Setenv("HOME", origHome) })

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(filepath.Join(tmpDir, ".tokenstream")))
		})
	})

	Describe("captures", func() {
		It("creates the captures directory below the target", func() {
			dir, err := m.CaptureDir(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(dir).To(Equal(filepath.Join(tmpDir, "captures")))
			Expect(dir).To(BeADirectory())
		})

		It("writes a capture file named after the stream", func() {
			dir, err := m.CaptureDir(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			f, err := m.CreateCapture(dir, "chatcmpl-123")
			Expect(err).NotTo(HaveOccurred())
			_, err = f.WriteString("data: [DONE]\n\n")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Close()).To(Succeed())

			Expect(filepath.Join(dir, "chatcmpl-123.sse")).To(BeARegularFile())
		})

		It("sanitizes names that would leave the directory", func() {
			dir, err := m.CaptureDir(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			f, err := m.CreateCapture(dir, "../../etc/passwd")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Close()).To(Succeed())
			Expect(filepath.Dir(f.Name())).To(Equal(dir))
		})

		It("rejects an empty name", func() {
			_, err := m.CreateCapture(tmpDir, "")
			Expect(err).To(HaveOccurred())
		})
	})
})
