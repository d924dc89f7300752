package errcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/moatazm17/PicDo-sub000/internal/extract"
)

func TestErrcode(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Errcode Suite")
}

var _ = Describe("Normalize", func() {
	It("returns empty values for a nil error", func() {
		code, msg := Normalize(nil)
		Expect(code).To(Equal(Code("")))
		Expect(msg).To(BeEmpty())
	})

	It("maps the no-text sentinel before any text matching", func() {
		code, _ := Normalize(fmt.Errorf("ocr: %w", extract.ErrNoText))
		Expect(code).To(Equal(NoTextDetected))
	})

	It("maps context deadline expiry to network_error", func() {
		code, _ := Normalize(fmt.Errorf("classify: %w", context.DeadlineExceeded))
		Expect(code).To(Equal(NetworkError))
	})

	It("maps content policy rejections to inappropriate_content", func() {
		code, _ := Normalize(errors.New("classification rejected by content policy"))
		Expect(code).To(Equal(InappropriateContent))
	})

	It("matches phrases case-insensitively", func() {
		code, _ := Normalize(errors.New("Blocked For SAFETY Reasons"))
		Expect(code).To(Equal(InappropriateContent))
	})

	It("prefers the earlier rule when multiple phrases appear", func() {
		// "safety" is listed before "timeout".
		code, _ := Normalize(errors.New("safety check timeout"))
		Expect(code).To(Equal(InappropriateContent))
	})

	It("maps connection failures to network_error", func() {
		for _, msg := range []string{
			"dial tcp 10.0.0.1:443: connection refused",
			"read: connection reset by peer",
			"lookup api.example.com: no such host",
			"request timeout exceeded",
		} {
			code, _ := Normalize(errors.New(msg))
			Expect(code).To(Equal(NetworkError), msg)
		}
	})

	It("falls through to processing_failed and keeps the message", func() {
		code, msg := Normalize(errors.New("something exploded"))
		Expect(code).To(Equal(ProcessingFailed))
		Expect(msg).To(Equal("something exploded"))
	})
})

var _ = Describe("Retryable", func() {
	It("marks transient codes retryable", func() {
		for _, c := range []Code{ProcessingFailed, NetworkError, MaintenanceMode, ServerError} {
			Expect(Retryable(c)).To(BeTrue(), string(c))
		}
	})

	It("marks input-dependent codes non-retryable", func() {
		for _, c := range []Code{NoTextDetected, InappropriateContent, InvalidImage, InvalidRequest, LimitReached, MissingImage, MissingUserID, JobNotFound} {
			Expect(Retryable(c)).To(BeFalse(), string(c))
		}
	})
})
