package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestImaging(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Imaging Suite")
}

func pngBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Preprocess", func() {
	It("re-encodes a small image as JPEG without scaling", func() {
		out, err := Preprocess(pngBytes(100, 60))
		Expect(err).NotTo(HaveOccurred())

		img, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("jpeg"))
		Expect(img.Bounds().Dx()).To(Equal(100))
		Expect(img.Bounds().Dy()).To(Equal(60))
	})

	It("downscales the long edge to the OCR bound", func() {
		out, err := Preprocess(pngBytes(3200, 1600))
		Expect(err).NotTo(HaveOccurred())

		img, _, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(MaxEdge))
		Expect(img.Bounds().Dy()).To(Equal(MaxEdge / 2))
	})

	It("keeps pixel values intact when downscaling", func() {
		src := image.NewRGBA(image.Rect(0, 0, 2400, 1200))
		for x := 0; x < 2400; x++ {
			for y := 0; y < 1200; y++ {
				src.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
		var buf bytes.Buffer
		Expect(png.Encode(&buf, src)).To(Succeed())

		out, err := Preprocess(buf.Bytes())
		Expect(err).NotTo(HaveOccurred())

		img, _, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		r, g, b, _ := img.At(img.Bounds().Dx()/2, img.Bounds().Dy()/2).RGBA()
		Expect(r >> 8).To(BeNumerically(">=", 250))
		Expect(g >> 8).To(BeNumerically(">=", 250))
		Expect(b >> 8).To(BeNumerically(">=", 250))
	})

	It("accepts JPEG input", func() {
		var buf bytes.Buffer
		src := image.NewRGBA(image.Rect(0, 0, 40, 40))
		Expect(jpeg.Encode(&buf, src, nil)).To(Succeed())

		_, err := Preprocess(buf.Bytes())
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects garbage", func() {
		_, err := Preprocess([]byte("definitely not an image"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Thumbnail", func() {
	It("returns a base64 JPEG bounded by the thumb edge", func() {
		thumb, err := Thumbnail(pngBytes(800, 400))
		Expect(err).NotTo(HaveOccurred())

		raw, err := base64.StdEncoding.DecodeString(thumb)
		Expect(err).NotTo(HaveOccurred())

		img, format, err := image.Decode(bytes.NewReader(raw))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("jpeg"))
		Expect(img.Bounds().Dx()).To(Equal(ThumbEdge))
		Expect(img.Bounds().Dy()).To(Equal(ThumbEdge / 2))
	})
})

var _ = Describe("Decodable", func() {
	It("accepts a PNG", func() {
		Expect(Decodable(pngBytes(10, 10))).To(BeTrue())
	})

	It("rejects arbitrary bytes", func() {
		Expect(Decodable([]byte{0x00, 0x01, 0x02})).To(BeFalse())
	})

	It("rejects an empty payload", func() {
		Expect(Decodable(nil)).To(BeFalse())
	})
})
