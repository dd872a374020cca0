// Package stimuli loads the images that attract agents onto the trail.
package stimuli

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a tightly packed, non-premultiplied RGBA8 image ready for upload.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// Blank returns a transparent black image.
func Blank(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]byte, width*height*4)}
}

// Load decodes a PNG, JPEG, GIF, BMP, TIFF or WebP file.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stimuli %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding stimuli %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("stimuli %s (%s) is empty", path, format)
	}
	return FromImage(img), nil
}

// FromImage converts any image to RGBA8, keeping its size.
func FromImage(img image.Image) *Image {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return fromNRGBA(dst)
}

// Resample scales img to width x height with bilinear filtering.
func Resample(img image.Image, width, height int) *Image {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return fromNRGBA(dst)
}

// Resized returns a copy of i scaled to width x height, or i itself when the
// size already matches.
func (i *Image) Resized(width, height int) *Image {
	if i.Width == width && i.Height == height {
		return i
	}
	return Resample(i.NRGBA(), width, height)
}

// NRGBA wraps the pixels without copying.
func (i *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    i.Pix,
		Stride: i.Width * 4,
		Rect:   image.Rect(0, 0, i.Width, i.Height),
	}
}

// At returns the RGBA8 texel at x, y.
func (i *Image) At(x, y int) [4]byte {
	o := (y*i.Width + x) * 4
	return [4]byte{i.Pix[o], i.Pix[o+1], i.Pix[o+2], i.Pix[o+3]}
}

func fromNRGBA(src *image.NRGBA) *Image {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := Blank(w, h)
	for y := 0; y < h; y++ {
		copy(out.Pix[y*w*4:(y+1)*w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
	}
	return out
}
