// Package comictest provides image fixtures shared by the package tests.
package comictest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// PNG returns a small encoded PNG whose first pixel encodes seed, so fixtures
// for different days have different bytes.
func PNG(seed int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 7))
	img.Set(0, 0, color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: 0x7f, A: 0xff})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Garbage returns bytes that no registered image decoder accepts.
func Garbage() []byte {
	return []byte("<html>not an image</html>")
}
