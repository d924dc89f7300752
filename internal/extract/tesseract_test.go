package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestExtract(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Extract Suite")
}

type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error

	gotName string
	gotArgs []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.gotName, s.gotArgs = name, args
	return s.stdout, s.stderr, s.err
}

var _ = Describe("Tesseract", func() {
	var (
		runner *stubRunner
		tess   *Tesseract
	)

	BeforeEach(func() {
		runner = &stubRunner{}
		tess = NewTesseractWithRunner(TesseractConfig{
			Lang:    "eng",
			WorkDir: GinkgoT().TempDir(),
		}, runner, nil)
	})

	It("returns normalized text from the binary's stdout", func() {
		runner.stdout = []byte("Team Offsite\r\n\r\n\r\n\r\nJan 10\n")
		res, err := tess.Extract(context.Background(), []byte("img"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Text).To(Equal("Team Offsite\n\nJan 10"))
		Expect(res.Method).To(Equal("tesseract"))
	})

	It("invokes the binary with stdout output and the language", func() {
		runner.stdout = []byte("hello")
		_, err := tess.Extract(context.Background(), []byte("img"))
		Expect(err).NotTo(HaveOccurred())
		Expect(runner.gotName).To(Equal("tesseract"))
		Expect(runner.gotArgs).To(HaveLen(4))
		Expect(runner.gotArgs[1]).To(Equal("stdout"))
		Expect(runner.gotArgs[2]).To(Equal("-l"))
		Expect(runner.gotArgs[3]).To(Equal("eng"))
	})

	It("passes the tessdata dir when configured", func() {
		tess = NewTesseractWithRunner(TesseractConfig{
			TessdataDir: "/opt/tessdata",
			WorkDir:     GinkgoT().TempDir(),
		}, runner, nil)
		runner.stdout = []byte("hello")
		_, err := tess.Extract(context.Background(), []byte("img"))
		Expect(err).NotTo(HaveOccurred())
		Expect(runner.gotArgs).To(ContainElement("--tessdata-dir"))
		Expect(runner.gotArgs).To(ContainElement("/opt/tessdata"))
	})

	It("returns the no-text sentinel for empty output", func() {
		runner.stdout = []byte("   \n\n  ")
		_, err := tess.Extract(context.Background(), []byte("img"))
		Expect(err).To(MatchError(ErrNoText))
	})

	It("treats pure line noise as no text", func() {
		runner.stdout = []byte("----------\n~~~~~~\n|  |  |\n")
		_, err := tess.Extract(context.Background(), []byte("img"))
		Expect(err).To(MatchError(ErrNoText))
	})

	It("wraps binary failures with stderr context", func() {
		runner.err = errors.New("exit status 1")
		runner.stderr = []byte("could not load language data")
		_, err := tess.Extract(context.Background(), []byte("img"))
		Expect(err).To(MatchError(ContainSubstring("could not load language data")))
	})

	It("cleans up the scratch file", func() {
		dir := GinkgoT().TempDir()
		tess = NewTesseractWithRunner(TesseractConfig{WorkDir: dir}, runner, nil)
		runner.stdout = []byte("hello")
		_, err := tess.Extract(context.Background(), []byte("img"))
		Expect(err).NotTo(HaveOccurred())

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})

var _ = Describe("Normalize", func() {
	It("collapses blank runs and trims", func() {
		Expect(Normalize("a\n\n\n\n\nb\n")).To(Equal("a\n\nb"))
	})

	It("removes box-drawing noise lines", func() {
		Expect(Normalize("header\n======\nbody")).To(Equal("header\n\nbody"))
	})
})
